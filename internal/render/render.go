// Package render exports the markdown notes of an episode workspace as a
// single self-contained HTML file.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"

	"podnotes/internal/workspace"
)

//go:embed templates/page.html
var templateFS embed.FS

var md = goldmark.New()

// OutputFile is the name of the exported HTML file inside the workspace.
const OutputFile = "notes.html"

// Section is one rendered markdown note.
type Section struct {
	Name string
	HTML template.HTML
}

type pageData struct {
	Title    string
	Meta     *workspace.Metadata
	Sections []Section
}

// Export renders every markdown file in dir into a single HTML page and
// writes it atomically next to the notes. It returns the path of the
// written file.
func Export(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("opening workspace: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace %s is not a directory", dir)
	}

	sections, err := collectSections(dir)
	if err != nil {
		return "", err
	}
	if len(sections) == 0 {
		return "", fmt.Errorf("no markdown notes found in %s", dir)
	}

	// Metadata is optional; a workspace without it still exports.
	meta, err := workspace.LoadMetadata(dir)
	if err != nil {
		meta = nil
	}

	title := filepath.Base(dir)
	if meta != nil && meta.Title != "" {
		title = meta.Title
	}

	page, err := template.ParseFS(templateFS, "templates/page.html")
	if err != nil {
		return "", fmt.Errorf("parsing page template: %w", err)
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, pageData{Title: title, Meta: meta, Sections: sections}); err != nil {
		return "", fmt.Errorf("rendering page: %w", err)
	}

	report, err := workspace.WriteBatch(dir, []workspace.File{{Name: OutputFile, Content: buf.Bytes()}})
	if err != nil {
		return "", err
	}
	if failed := report.Failed(); len(failed) > 0 {
		return "", fmt.Errorf("writing %s: %w", OutputFile, failed[0].Err)
	}
	return filepath.Join(dir, OutputFile), nil
}

// collectSections renders each markdown file in dir, sorted by name with
// the interview notes last.
func collectSections(dir string) ([]Section, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, err
	}

	const interviewFile = "interview.md"
	sort.Slice(paths, func(i, j int) bool {
		a, b := filepath.Base(paths[i]), filepath.Base(paths[j])
		if (a == interviewFile) != (b == interviewFile) {
			return b == interviewFile
		}
		return a < b
	})

	var sections []Section
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
		}
		sections = append(sections, Section{
			Name: sectionName(filepath.Base(path)),
			HTML: renderMarkdown(data),
		})
	}
	return sections, nil
}

func sectionName(file string) string {
	name := strings.TrimSuffix(file, ".md")
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	if name == "" {
		return file
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func renderMarkdown(text []byte) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert(text, &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(string(text)))
	}
	return template.HTML(buf.String()) //nolint: gosec
}
