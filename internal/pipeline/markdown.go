package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"podnotes/internal/extract"
	"podnotes/internal/feed"
)

// noteMarkdown renders one extraction result as a markdown note.
func noteMarkdown(ep feed.Episode, name string, r *extract.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", ep.Title)
	fmt.Fprintf(&b, "*%s*", titleCase(name))
	if !ep.PublishDate.IsZero() {
		fmt.Fprintf(&b, " &middot; %s", ep.PublishDate.Format("2006-01-02"))
	}
	b.WriteString("\n\n")

	for _, field := range sortedFields(r.Fields) {
		fmt.Fprintf(&b, "## %s\n\n", titleCase(field))
		writeValue(&b, r.Fields[field])
		b.WriteString("\n")
	}
	return b.String()
}

// writeValue formats one extracted field. Strings become paragraphs,
// lists become bullet points, anything else is pretty-printed JSON.
func writeValue(b *strings.Builder, v any) {
	switch val := v.(type) {
	case string:
		b.WriteString(strings.TrimSpace(val))
		b.WriteString("\n")
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok {
				fmt.Fprintf(b, "- %s\n", strings.TrimSpace(s))
				continue
			}
			data, err := json.Marshal(item)
			if err != nil {
				fmt.Fprintf(b, "- %v\n", item)
				continue
			}
			fmt.Fprintf(b, "- %s\n", data)
		}
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			fmt.Fprintf(b, "%v\n", v)
			return
		}
		fmt.Fprintf(b, "```json\n%s\n```\n", data)
	}
}

func sortedFields(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func titleCase(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
