package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"podnotes/internal/feed"
)

// Transcript source tags, in fallback order.
const (
	SourceFree = "free"
	SourcePaid = "paid"
)

// Transcript is the full text for one episode from one source. Immutable
// after creation; cached under (episode id, source tag).
type Transcript struct {
	EpisodeID string  `json:"episode_id"`
	Source    string  `json:"source"`
	Text      string  `json:"text"`
	Language  string  `json:"language,omitempty"`
	Cost      float64 `json:"cost"`
}

// Strategy is one concrete way of obtaining a transcript. Fetch returns an
// error wrapping ErrDeclined when the strategy is simply unavailable for
// this episode, which is not a failure.
type Strategy interface {
	Tag() string
	Fetch(ctx context.Context, ep feed.Episode) (*Transcript, error)
}

// ErrDeclined marks a strategy that is unavailable rather than broken.
var ErrDeclined = errors.New("strategy declined")

// Attempt records why one strategy did not produce a transcript.
type Attempt struct {
	Strategy string
	Reason   string
}

// NoTranscriptError is returned when every strategy was exhausted. It is
// fatal for the episode: nothing downstream can run without a transcript.
type NoTranscriptError struct {
	EpisodeID string
	Attempts  []Attempt
}

func (e *NoTranscriptError) Error() string {
	var parts []string
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Strategy, a.Reason))
	}
	return fmt.Sprintf("no transcript available for %s (%s)", e.EpisodeID, strings.Join(parts, "; "))
}
