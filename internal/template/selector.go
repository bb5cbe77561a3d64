package template

import (
	"strings"

	"podnotes/internal/config"
	"podnotes/internal/feed"
)

// Select decides which templates apply to an episode. It is a pure function
// of the episode metadata, the category config and the override list, so it
// is safe to call repeatedly (e.g. for dry-run cost estimates).
//
// An explicit override fully replaces the computed set. Otherwise the
// result is the default set plus the templates of the first matching
// category, ordered and de-duplicated.
func Select(ep feed.Episode, cats config.Categories, defaults, override []string) []string {
	if len(override) > 0 {
		return dedupe(override)
	}

	selected := append([]string(nil), defaults...)
	if cat := InferCategory(ep, cats); cat != nil {
		selected = append(selected, cat.Templates...)
	}
	return dedupe(selected)
}

// InferCategory matches the episode title and description against the
// configured keyword table. The first category (in table order) with at
// least the threshold number of keyword hits wins.
func InferCategory(ep feed.Episode, cats config.Categories) *config.Category {
	threshold := cats.Threshold
	if threshold < 1 {
		threshold = 1
	}

	haystack := strings.ToLower(ep.Title + " " + ep.Description)
	for i := range cats.Table {
		hits := 0
		for _, kw := range cats.Table[i].Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(haystack, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits >= threshold {
			return &cats.Table[i]
		}
	}
	return nil
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
