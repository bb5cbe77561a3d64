package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"podnotes/internal/feed"
)

func TestDirName(t *testing.T) {
	ep := feed.Episode{
		FeedID:      "deep-tech-weekly",
		Title:       "Deep Dive: Kubernetes Autoscaling",
		PublishDate: time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC),
	}
	got := DirName(ep)
	want := "deep-tech-weekly-2026-01-12-deep-dive-kubernetes-autoscaling"
	if got != want {
		t.Errorf("DirName = %q, want %q", got, want)
	}

	ep.PublishDate = time.Time{}
	if !strings.Contains(DirName(ep), "undated") {
		t.Errorf("expected 'undated' marker, got %q", DirName(ep))
	}
}

func TestWriteBatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")
	report, err := WriteBatch(dir, []File{
		{Name: "summary.md", Content: []byte("# Summary\n")},
		{Name: "quotes.md", Content: []byte("# Quotes\n")},
	})
	if err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if len(report.Failed()) != 0 {
		t.Fatalf("unexpected failures: %+v", report.Failed())
	}

	for _, name := range []string{"summary.md", "quotes.md"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}

	// No stray temp files left behind.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("expected exactly 2 files, found %d", len(entries))
	}
}

func TestWriteBatchBacksUpExisting(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "summary.md"), []byte("old"), 0o644)

	report, err := WriteBatch(dir, []File{{Name: "summary.md", Content: []byte("new")}})
	if err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	res := report.Results[0]
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Backup == "" {
		t.Fatal("expected a backup path")
	}

	backup, err := os.ReadFile(res.Backup)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if string(backup) != "old" {
		t.Errorf("backup content = %q, want 'old'", backup)
	}

	current, _ := os.ReadFile(filepath.Join(dir, "summary.md"))
	if string(current) != "new" {
		t.Errorf("current content = %q, want 'new'", current)
	}
}

func TestWriteBatchIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	report, err := WriteBatch(dir, []File{
		{Name: "ok1.md", Content: []byte("a")},
		{Name: "bad/nested.md", Content: []byte("b")}, // invalid name, fails
		{Name: "ok2.md", Content: []byte("c")},
	})
	if err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	failed := report.Failed()
	if len(failed) != 1 || failed[0].Name != "bad/nested.md" {
		t.Fatalf("expected exactly the bad file to fail, got %+v", failed)
	}

	for _, name := range []string{"ok1.md", "ok2.md"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s despite sibling failure: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "bad")); !os.IsNotExist(err) {
		t.Error("failed file must not leave partial output")
	}
}

func TestAppendLineDurable(t *testing.T) {
	dir := t.TempDir()
	if err := AppendLine(dir, "interview.md", "## Q1\nanswer one\n"); err != nil {
		t.Fatalf("AppendLine: %v", err)
	}
	if err := AppendLine(dir, "interview.md", "## Q2\nanswer two\n"); err != nil {
		t.Fatalf("AppendLine: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "interview.md"))
	if err != nil {
		t.Fatalf("reading interview file: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "answer one") || !strings.Contains(text, "answer two") {
		t.Errorf("expected both turns in file, got %q", text)
	}
	if strings.Index(text, "Q1") > strings.Index(text, "Q2") {
		t.Error("turns out of order")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	md := &Metadata{
		FeedID:           "show",
		EpisodeID:        "ep-1",
		Title:            "Episode One",
		TranscriptSource: "paid",
		Templates: map[string]TemplateStatus{
			"summary": {Status: "ok", Provider: "openai", Cost: 0.01, File: "summary.md"},
			"quotes":  {Status: "failed", Error: "validation failed twice"},
		},
		TotalCost:   0.03,
		ProcessedAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := WriteMetadata(dir, md); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	loaded, err := LoadMetadata(dir)
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if loaded.Title != md.Title || loaded.TranscriptSource != "paid" {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
	if loaded.Templates["quotes"].Status != "failed" {
		t.Errorf("expected failed quotes status, got %+v", loaded.Templates["quotes"])
	}
}
