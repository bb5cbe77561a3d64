package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MetadataFile is the per-episode metadata file name.
const MetadataFile = "episode.yaml"

// TemplateStatus records how one template fared for this episode.
type TemplateStatus struct {
	Status   string  `yaml:"status"` // ok | failed
	Provider string  `yaml:"provider,omitempty"`
	Cost     float64 `yaml:"cost"`
	File     string  `yaml:"file,omitempty"`
	Error    string  `yaml:"error,omitempty"`
	Cached   bool    `yaml:"cached,omitempty"`
}

// Metadata is the workspace's record of the processed episode.
type Metadata struct {
	FeedID           string                    `yaml:"feed_id"`
	EpisodeID        string                    `yaml:"episode_id"`
	Title            string                    `yaml:"title"`
	PublishDate      string                    `yaml:"publish_date,omitempty"`
	TranscriptSource string                    `yaml:"transcript_source"`
	Templates        map[string]TemplateStatus `yaml:"templates"`
	TotalCost        float64                   `yaml:"total_cost"`
	InterviewSession string                    `yaml:"interview_session,omitempty"`
	ProcessedAt      time.Time                 `yaml:"processed_at"`
}

// WriteMetadata persists the metadata file atomically into dir.
func WriteMetadata(dir string, md *Metadata) error {
	data, err := yaml.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	report, err := WriteBatch(dir, []File{{Name: MetadataFile, Content: data}})
	if err != nil {
		return err
	}
	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("writing metadata: %w", failed[0].Err)
	}
	return nil
}

// LoadMetadata reads the metadata file from dir.
func LoadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	var md Metadata
	if err := yaml.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	return &md, nil
}
