package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"podnotes/internal/feed"
)

func pageWith(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
}

func longText(sentence string) string {
	return strings.Repeat(sentence+" ", 60)
}

func TestFreeStrategyFindsTranscriptBlock(t *testing.T) {
	srv := pageWith(`<html><body>
		<p>Show notes here.</p>
		<div class="transcript">` + longText("Welcome to the show.") + `</div>
	</body></html>`)
	defer srv.Close()

	s := NewFreeStrategy(0)
	tr, err := s.Fetch(context.Background(), feed.Episode{FeedID: "f", EpisodeID: "e", PageURL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if tr.Source != SourceFree || tr.Cost != 0 {
		t.Errorf("unexpected transcript meta: %+v", tr)
	}
	if !strings.Contains(tr.Text, "Welcome to the show.") {
		t.Errorf("transcript text missing expected content")
	}
}

func TestFreeStrategyReadabilityFallback(t *testing.T) {
	srv := pageWith(`<html><head><title>Ep 1</title></head><body>
		<article><h1>Episode 1</h1><p>` + longText("A long inline transcript paragraph.") + `</p></article>
	</body></html>`)
	defer srv.Close()

	s := NewFreeStrategy(0)
	tr, err := s.Fetch(context.Background(), feed.Episode{FeedID: "f", EpisodeID: "e", PageURL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(tr.Text, "inline transcript paragraph") {
		t.Error("expected readability text")
	}
}

func TestFreeStrategyDeclines(t *testing.T) {
	cases := []struct {
		name string
		ep   func(t *testing.T) feed.Episode
	}{
		{
			name: "no page url",
			ep: func(t *testing.T) feed.Episode {
				return feed.Episode{FeedID: "f", EpisodeID: "e"}
			},
		},
		{
			name: "http 404",
			ep: func(t *testing.T) feed.Episode {
				srv := httptest.NewServer(http.NotFoundHandler())
				t.Cleanup(srv.Close)
				return feed.Episode{FeedID: "f", EpisodeID: "e", PageURL: srv.URL}
			},
		},
		{
			name: "too little text",
			ep: func(t *testing.T) feed.Episode {
				srv := pageWith(`<html><body><p>Short notes.</p></body></html>`)
				t.Cleanup(srv.Close)
				return feed.Episode{FeedID: "f", EpisodeID: "e", PageURL: srv.URL}
			},
		},
	}

	s := NewFreeStrategy(0)
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := s.Fetch(context.Background(), c.ep(t))
			if !errors.Is(err, ErrDeclined) {
				t.Errorf("expected ErrDeclined, got %v", err)
			}
		})
	}
}

func TestPaidStrategySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transcribe" {
			http.NotFound(w, r)
			return
		}
		var req transcribeRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.AudioURL != "https://example.com/a.mp3" {
			t.Errorf("unexpected audio url: %q", req.AudioURL)
		}
		json.NewEncoder(w).Encode(transcribeResponse{Text: "Hello world", Language: "en", Cost: 0.02})
	}))
	defer srv.Close()

	s := NewPaidStrategy(srv.URL, "")
	tr, err := s.Fetch(context.Background(), feed.Episode{
		FeedID: "f", EpisodeID: "e", AudioURL: "https://example.com/a.mp3",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if tr.Text != "Hello world" || tr.Cost != 0.02 || tr.Source != SourcePaid {
		t.Errorf("unexpected transcript: %+v", tr)
	}
}

func TestPaidStrategyRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "flaky", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(transcribeResponse{Text: "eventually", Cost: 0.01})
	}))
	defer srv.Close()

	s := NewPaidStrategy(srv.URL, "")
	tr, err := s.Fetch(context.Background(), feed.Episode{FeedID: "f", EpisodeID: "e", AudioURL: "https://example.com/a.mp3"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if tr.Text != "eventually" {
		t.Errorf("unexpected text %q", tr.Text)
	}
	if calls < 3 {
		t.Errorf("expected retries, got %d calls", calls)
	}
}

func TestPaidStrategyDoesNotRetryRejections(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewPaidStrategy(srv.URL, "")
	_, err := s.Fetch(context.Background(), feed.Episode{FeedID: "f", EpisodeID: "e", AudioURL: "https://example.com/a.mp3"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("4xx must not be retried, got %d calls", calls)
	}
}

func TestPaidStrategyDeclinesWhenUnconfigured(t *testing.T) {
	s := NewPaidStrategy("", "")
	_, err := s.Fetch(context.Background(), feed.Episode{FeedID: "f", EpisodeID: "e", AudioURL: "https://example.com/a.mp3"})
	if !errors.Is(err, ErrDeclined) {
		t.Errorf("expected ErrDeclined, got %v", err)
	}
}
