package transcript

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"podnotes/internal/feed"
)

// Podcast platforms publish transcripts in wildly different markup; these
// selectors cover the common "transcript block" conventions. Anything else
// falls through to readability over the whole page.
var transcriptSelectors = []string{
	".transcript",
	"#transcript",
	"[class*='transcript']",
	"section.episode-transcript",
}

// minTranscriptLength filters out pages where the matched block is a teaser
// or a "transcript coming soon" stub.
const minTranscriptLength = 500

// FreeStrategy scrapes the episode's web page for a published transcript.
// Zero cost; declines when the page has none.
type FreeStrategy struct {
	client *http.Client
}

// NewFreeStrategy creates the free page-scrape strategy.
func NewFreeStrategy(timeout time.Duration) *FreeStrategy {
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &FreeStrategy{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

func (s *FreeStrategy) Tag() string { return SourceFree }

// Fetch downloads the episode page and extracts transcript text, first from
// dedicated transcript markup, then from the page body via readability.
func (s *FreeStrategy) Fetch(ctx context.Context, ep feed.Episode) (*Transcript, error) {
	if ep.PageURL == "" {
		return nil, fmt.Errorf("episode has no web page: %w", ErrDeclined)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", ep.PageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building page request: %w", err)
	}
	req.Header.Set("User-Agent", "podnotes/1.0 (podcast notes)")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", ep.PageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("page returned %d: %w", resp.StatusCode, ErrDeclined)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading page body: %w", err)
	}

	text := extractTranscriptBlock(body)
	if text == "" {
		text = extractReadableText(body, ep.PageURL)
	}
	if len(text) < minTranscriptLength {
		return nil, fmt.Errorf("no usable transcript on page: %w", ErrDeclined)
	}

	return &Transcript{
		EpisodeID: ep.ID(),
		Source:    SourceFree,
		Text:      text,
	}, nil
}

// extractTranscriptBlock looks for dedicated transcript markup.
func extractTranscriptBlock(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}

	for _, sel := range transcriptSelectors {
		var best string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := normalizeWhitespace(s.Text())
			if len(text) > len(best) {
				best = text
			}
		})
		if len(best) >= minTranscriptLength {
			return best
		}
	}
	return ""
}

// extractReadableText runs readability over the whole page. Pages that
// inline their transcript in the article body end up here.
func extractReadableText(body []byte, pageURL string) string {
	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return ""
	}
	return normalizeWhitespace(article.TextContent)
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
