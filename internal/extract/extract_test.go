package extract

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"podnotes/internal/config"
	"podnotes/internal/feed"
	"podnotes/internal/llm"
	"podnotes/internal/store"
	"podnotes/internal/template"
	"podnotes/internal/transcript"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// mockProvider answers with a scripted function and counts calls.
type mockProvider struct {
	mu      sync.Mutex
	name    string
	respond func(system, user string) (*llm.Completion, error)
	calls   int
	prompts []string
}

func (m *mockProvider) Complete(_ context.Context, system, user string) (*llm.Completion, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, user)
	m.mu.Unlock()
	return m.respond(system, user)
}

func (m *mockProvider) Name() string       { return m.name }
func (m *mockProvider) IsConfigured() bool { return true }

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testRegistry(p llm.Provider) *llm.Registry {
	r := llm.NewRegistry(config.Extraction{Provider: "none"})
	r.Register(p, true)
	return r
}

func testLibrary(t *testing.T) *template.Library {
	t.Helper()
	lib, err := template.LoadLibrary("")
	if err != nil {
		t.Fatalf("LoadLibrary: %v", err)
	}
	return lib
}

func testTranscript() *transcript.Transcript {
	return &transcript.Transcript{
		EpisodeID: "show/ep-1",
		Source:    transcript.SourcePaid,
		Text:      "Hello world, welcome to the show.",
	}
}

func testEpisode() feed.Episode {
	return feed.Episode{FeedID: "show", EpisodeID: "ep-1", Title: "Episode One"}
}

func jsonFor(_ string, user string) (*llm.Completion, error) {
	// Answer whichever template the prompt belongs to.
	switch {
	case strings.Contains(user, "memorable direct quotes"):
		return &llm.Completion{Text: `{"quotes": [{"text": "Hello world", "speaker": "host"}]}`, Cost: 0.01}, nil
	default:
		return &llm.Completion{Text: `{"summary": "An episode.", "key_points": ["one"]}`, Cost: 0.01}, nil
	}
}

func TestRunExtractsAllTemplates(t *testing.T) {
	db := openTestDB(t)
	mock := &mockProvider{name: "mock", respond: jsonFor}
	engine := New(db, testRegistry(mock), testLibrary(t), time.Hour, 2, "v1")

	outcomes := engine.Run(context.Background(), testEpisode(), testTranscript(), []string{"summary", "quotes"})

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for name, o := range outcomes {
		if o.Err != nil {
			t.Errorf("template %s failed: %v", name, o.Err)
			continue
		}
		if o.Result.Provider != "mock" || len(o.Result.Fields) == 0 {
			t.Errorf("unexpected result for %s: %+v", name, o.Result)
		}
	}

	// Each successful template records its cost.
	records, _ := db.GetCosts("show/ep-1", store.CostExtraction)
	if len(records) != 2 {
		t.Errorf("expected 2 cost records, got %d", len(records))
	}
}

func TestRunSecondCallHitsCache(t *testing.T) {
	db := openTestDB(t)
	mock := &mockProvider{name: "mock", respond: jsonFor}
	engine := New(db, testRegistry(mock), testLibrary(t), time.Hour, 1, "v1")

	first := engine.Run(context.Background(), testEpisode(), testTranscript(), []string{"summary"})
	if first["summary"].Err != nil {
		t.Fatalf("first run: %v", first["summary"].Err)
	}

	second := engine.Run(context.Background(), testEpisode(), testTranscript(), []string{"summary"})
	if second["summary"].Err != nil {
		t.Fatalf("second run: %v", second["summary"].Err)
	}

	if mock.callCount() != 1 {
		t.Errorf("expected provider to be called once, got %d", mock.callCount())
	}
	if !second["summary"].Result.Cached {
		t.Error("expected second result to be marked cached")
	}

	// The cached call must not add cost.
	records, _ := db.GetCosts("show/ep-1", store.CostExtraction)
	if len(records) != 1 {
		t.Errorf("expected 1 cost record, got %d", len(records))
	}
}

func TestRunChangedTranscriptMissesCache(t *testing.T) {
	db := openTestDB(t)
	mock := &mockProvider{name: "mock", respond: jsonFor}
	engine := New(db, testRegistry(mock), testLibrary(t), time.Hour, 1, "v1")

	engine.Run(context.Background(), testEpisode(), testTranscript(), []string{"summary"})

	changed := testTranscript()
	changed.Text = "A completely different transcript."
	engine.Run(context.Background(), testEpisode(), changed, []string{"summary"})

	if mock.callCount() != 2 {
		t.Errorf("expected a fresh call for a changed transcript, got %d calls", mock.callCount())
	}
}

func TestRunPromptVersionChangesKey(t *testing.T) {
	db := openTestDB(t)
	mock := &mockProvider{name: "mock", respond: jsonFor}

	New(db, testRegistry(mock), testLibrary(t), time.Hour, 1, "v1").
		Run(context.Background(), testEpisode(), testTranscript(), []string{"summary"})
	New(db, testRegistry(mock), testLibrary(t), time.Hour, 1, "v2").
		Run(context.Background(), testEpisode(), testTranscript(), []string{"summary"})

	if mock.callCount() != 2 {
		t.Errorf("expected prompt version to invalidate the cache, got %d calls", mock.callCount())
	}
}

func TestRunRetriesOnceOnValidationFailure(t *testing.T) {
	db := openTestDB(t)
	var attempt int
	mock := &mockProvider{name: "mock"}
	mock.respond = func(system, user string) (*llm.Completion, error) {
		attempt++
		if attempt == 1 {
			return &llm.Completion{Text: `{"wrong": "shape"}`, Cost: 0.01}, nil
		}
		return &llm.Completion{Text: `{"summary": "fixed", "key_points": ["a"]}`, Cost: 0.01}, nil
	}
	engine := New(db, testRegistry(mock), testLibrary(t), time.Hour, 1, "v1")

	outcomes := engine.Run(context.Background(), testEpisode(), testTranscript(), []string{"summary"})
	o := outcomes["summary"]
	if o.Err != nil {
		t.Fatalf("expected retry to recover: %v", o.Err)
	}
	if mock.callCount() != 2 {
		t.Errorf("expected 2 provider calls, got %d", mock.callCount())
	}
	// Cost covers both attempts.
	if o.Result.Cost < 0.019 || o.Result.Cost > 0.021 {
		t.Errorf("expected combined cost ~0.02, got %f", o.Result.Cost)
	}
	// The retry prompt names the required fields.
	last := mock.prompts[len(mock.prompts)-1]
	if !strings.Contains(last, "summary, key_points") {
		t.Errorf("strict retry prompt missing field list: %q", last)
	}
}

func TestRunFailingTemplateDoesNotAbortSiblings(t *testing.T) {
	db := openTestDB(t)
	mock := &mockProvider{name: "mock"}
	mock.respond = func(system, user string) (*llm.Completion, error) {
		if strings.Contains(user, "memorable direct quotes") {
			return &llm.Completion{Text: "garbage, not json"}, nil
		}
		return jsonFor(system, user)
	}
	engine := New(db, testRegistry(mock), testLibrary(t), time.Hour, 2, "v1")

	outcomes := engine.Run(context.Background(), testEpisode(), testTranscript(), []string{"summary", "quotes"})

	if outcomes["summary"].Err != nil {
		t.Errorf("summary should succeed: %v", outcomes["summary"].Err)
	}
	if outcomes["quotes"].Err == nil {
		t.Error("quotes should fail after two invalid responses")
	}
	if !strings.Contains(outcomes["quotes"].Err.Error(), "twice") {
		t.Errorf("expected double-validation failure, got %v", outcomes["quotes"].Err)
	}
}

func TestRunProviderErrorIsTemplateScoped(t *testing.T) {
	db := openTestDB(t)
	mock := &mockProvider{name: "mock"}
	mock.respond = func(system, user string) (*llm.Completion, error) {
		return nil, errors.New("transport exploded")
	}
	engine := New(db, testRegistry(mock), testLibrary(t), time.Hour, 1, "v1")

	outcomes := engine.Run(context.Background(), testEpisode(), testTranscript(), []string{"summary"})
	if outcomes["summary"].Err == nil {
		t.Fatal("expected provider error to surface")
	}
	if mock.callCount() != 1 {
		t.Errorf("transport errors must not be retried, got %d calls", mock.callCount())
	}

	// Failed templates record no cost.
	records, _ := db.GetCosts("show/ep-1", store.CostExtraction)
	if len(records) != 0 {
		t.Errorf("expected no cost records, got %d", len(records))
	}
}

func TestRunUnknownTemplate(t *testing.T) {
	db := openTestDB(t)
	mock := &mockProvider{name: "mock", respond: jsonFor}
	engine := New(db, testRegistry(mock), testLibrary(t), time.Hour, 1, "v1")

	outcomes := engine.Run(context.Background(), testEpisode(), testTranscript(), []string{"no-such-template"})
	if outcomes["no-such-template"].Err == nil {
		t.Error("expected error for unknown template")
	}
}
