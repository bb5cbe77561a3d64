package feed

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Episode is the immutable metadata for one podcast episode, owned by the
// feed and referenced by the processing pipeline.
type Episode struct {
	FeedID      string
	EpisodeID   string
	FeedTitle   string
	Title       string
	Description string
	PublishDate time.Time
	AudioURL    string
	// PageURL is the episode's web page, used to look for a free transcript.
	PageURL  string
	Duration time.Duration
}

// ID returns the identity used for cache keys and cost records.
func (e Episode) ID() string {
	return e.FeedID + "/" + e.EpisodeID
}

// Feed is a parsed podcast feed with episodes ordered newest first.
type Feed struct {
	Title    string
	Episodes []Episode
}

// Source fetches and parses podcast feeds.
type Source struct {
	parser *gofeed.Parser
}

// NewSource creates a feed source.
func NewSource() *Source {
	return &Source{parser: gofeed.NewParser()}
}

// Fetch parses the feed at feedURL.
func (s *Source) Fetch(ctx context.Context, feedURL string) (*Feed, error) {
	parsed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}

	feedID := Slugify(parsed.Title)
	f := &Feed{Title: parsed.Title}
	for _, item := range parsed.Items {
		ep := parseItem(item, feedID, parsed.Title)
		if ep == nil {
			continue
		}
		f.Episodes = append(f.Episodes, *ep)
	}

	sort.SliceStable(f.Episodes, func(i, j int) bool {
		return f.Episodes[i].PublishDate.After(f.Episodes[j].PublishDate)
	})
	return f, nil
}

// GetEpisode fetches the feed and returns the episode at index, where 0 is
// the most recent.
func (s *Source) GetEpisode(ctx context.Context, feedURL string, index int) (*Episode, error) {
	f, err := s.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(f.Episodes) {
		return nil, fmt.Errorf("episode index %d out of range (feed has %d episodes)", index, len(f.Episodes))
	}
	return &f.Episodes[index], nil
}

func parseItem(item *gofeed.Item, feedID, feedTitle string) *Episode {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}

	episodeID := item.GUID
	if episodeID == "" {
		episodeID = item.Link
	}
	if episodeID == "" {
		return nil
	}

	var audioURL string
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "audio/") || enc.Type == "" {
			audioURL = enc.URL
			break
		}
	}

	var published time.Time
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}

	return &Episode{
		FeedID:      feedID,
		EpisodeID:   Slugify(episodeID),
		FeedTitle:   feedTitle,
		Title:       title,
		Description: strings.TrimSpace(item.Description),
		PublishDate: published,
		AudioURL:    audioURL,
		PageURL:     item.Link,
		Duration:    parseDuration(item),
	}
}

// parseDuration reads the itunes:duration tag, which is either plain
// seconds or HH:MM:SS / MM:SS.
func parseDuration(item *gofeed.Item) time.Duration {
	if item.ITunesExt == nil || item.ITunesExt.Duration == "" {
		return 0
	}
	raw := strings.TrimSpace(item.ITunesExt.Duration)

	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}

	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}

// Slugify lowercases s and replaces runs of non-alphanumeric characters
// with single hyphens, suitable for directory names and identifiers.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
