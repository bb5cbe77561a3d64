package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"podnotes/internal/feed"
)

// File is one named output destined for an episode workspace.
type File struct {
	Name    string
	Content []byte
}

// FileResult reports the outcome for one file in a batch.
type FileResult struct {
	Name   string
	Backup string // path of the timestamped backup, if one was taken
	Err    error
}

// BatchReport collects per-file outcomes. A batch keeps going past
// individual file failures, mirroring per-template isolation in extraction.
type BatchReport struct {
	Results []FileResult
}

// Failed returns the results that carry errors.
func (r *BatchReport) Failed() []FileResult {
	var failed []FileResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// DirName is the workspace naming convention: <feed>-<date>-<slugified-title>.
func DirName(ep feed.Episode) string {
	date := "undated"
	if !ep.PublishDate.IsZero() {
		date = ep.PublishDate.Format("2006-01-02")
	}
	return fmt.Sprintf("%s-%s-%s", ep.FeedID, date, feed.Slugify(ep.Title))
}

// WriteBatch writes every file into dir atomically: content goes to a
// temporary file first and is renamed into place, so a destination is never
// observable half-written. Existing destinations get a single timestamped
// backup before being replaced. One file failing does not stop the rest.
func WriteBatch(dir string, files []File) (*BatchReport, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace %s: %w", dir, err)
	}

	report := &BatchReport{}
	for _, f := range files {
		backup, err := writeAtomic(dir, f.Name, f.Content)
		report.Results = append(report.Results, FileResult{Name: f.Name, Backup: backup, Err: err})
	}
	return report, nil
}

func writeAtomic(dir, name string, content []byte) (backup string, err error) {
	dest := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", name, err)
	}

	if _, statErr := os.Stat(dest); statErr == nil {
		backup = dest + "." + time.Now().Format("20060102-150405") + ".bak"
		if err := os.Rename(dest, backup); err != nil {
			return "", fmt.Errorf("backing up %s: %w", name, err)
		}
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return backup, fmt.Errorf("installing %s: %w", name, err)
	}
	return backup, nil
}

// AppendLine appends text to a file in dir and syncs it to disk before
// returning, so the caller can rely on the data surviving an interrupt.
func AppendLine(dir, name, text string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating workspace %s: %w", dir, err)
	}

	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("appending to %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	return nil
}
