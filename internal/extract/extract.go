package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"podnotes/internal/feed"
	"podnotes/internal/llm"
	"podnotes/internal/logger"
	"podnotes/internal/store"
	"podnotes/internal/template"
	"podnotes/internal/transcript"
)

// Transcripts longer than this are truncated before prompting.
const maxTranscriptChars = 24000

// Result is one successful extraction for an (episode, template) pair.
type Result struct {
	EpisodeID string         `json:"episode_id"`
	Template  string         `json:"template"`
	Provider  string         `json:"provider"`
	Fields    map[string]any `json:"fields"`
	Cost      float64        `json:"cost"`
	CreatedAt time.Time      `json:"created_at"`
	Cached    bool           `json:"-"`
}

// Outcome is the per-template verdict: a result or an isolated error.
type Outcome struct {
	Template string
	Result   *Result
	Err      error
}

// Engine runs extraction templates against a transcript. Templates execute
// concurrently under a bounded worker pool; one template failing never
// aborts its siblings.
type Engine struct {
	db            *store.DB
	registry      *llm.Registry
	lib           *template.Library
	ttl           time.Duration
	concurrency   int
	promptVersion string
	log           *logrus.Entry
}

// New creates an extraction engine.
func New(db *store.DB, registry *llm.Registry, lib *template.Library, ttl time.Duration, concurrency int, promptVersion string) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		db:            db,
		registry:      registry,
		lib:           lib,
		ttl:           ttl,
		concurrency:   concurrency,
		promptVersion: promptVersion,
		log:           logger.New("extract"),
	}
}

// Run extracts every named template and returns one outcome per template.
// Workers send outcomes over a channel to a single collector, so no map is
// shared between goroutines.
func (e *Engine) Run(ctx context.Context, ep feed.Episode, tr *transcript.Transcript, names []string) map[string]Outcome {
	jobs := make(chan string, len(names))
	results := make(chan Outcome, len(names))

	workers := e.concurrency
	if workers > len(names) {
		workers = len(names)
	}
	for i := 0; i < workers; i++ {
		go func() {
			for name := range jobs {
				result, err := e.runTemplate(ctx, ep, tr, name)
				results <- Outcome{Template: name, Result: result, Err: err}
			}
		}()
	}

	for _, name := range names {
		jobs <- name
	}
	close(jobs)

	outcomes := make(map[string]Outcome, len(names))
	for range names {
		o := <-results
		outcomes[o.Template] = o
	}
	return outcomes
}

func (e *Engine) runTemplate(ctx context.Context, ep feed.Episode, tr *transcript.Transcript, name string) (*Result, error) {
	tmpl, ok := e.lib.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown template %q", name)
	}

	key := store.CacheKey("extraction", ep.ID(), name, e.promptVersion, tr.Text)
	if cached := e.fromCache(key); cached != nil {
		e.log.WithFields(logrus.Fields{"episode": ep.ID(), "template": name}).
			Debug("extraction cache hit")
		cached.Cached = true
		return cached, nil
	}

	provider, err := e.registry.Get(tmpl.Provider)
	if err != nil {
		return nil, err
	}

	system, user := tmpl.Render(promptValues(ep, tr))

	completion, err := provider.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", provider.Name(), err)
	}
	totalCost := completion.Cost

	fields, validationErr := parseAndValidate(tmpl, completion.Text)
	if validationErr != nil {
		// One stricter retry on malformed output, then give up on this
		// template only.
		e.log.WithFields(logrus.Fields{"template": name}).
			WithError(validationErr).Warn("validation failed, retrying with strict prompt")

		completion, err = provider.Complete(ctx, system, strictRetryPrompt(tmpl, user, validationErr))
		if err != nil {
			return nil, fmt.Errorf("provider %s on retry: %w", provider.Name(), err)
		}
		totalCost += completion.Cost

		fields, validationErr = parseAndValidate(tmpl, completion.Text)
		if validationErr != nil {
			return nil, fmt.Errorf("template %s failed validation twice: %w", name, validationErr)
		}
	}

	result := &Result{
		EpisodeID: ep.ID(),
		Template:  name,
		Provider:  provider.Name(),
		Fields:    fields,
		Cost:      totalCost,
		CreatedAt: time.Now().UTC(),
	}

	if err := e.db.AppendCost(store.CostExtraction, provider.Name(), totalCost, ep.ID()); err != nil {
		e.log.WithError(err).Warn("recording extraction cost")
	}
	e.toCache(key, result)
	return result, nil
}

func promptValues(ep feed.Episode, tr *transcript.Transcript) map[string]string {
	text := tr.Text
	if len(text) > maxTranscriptChars {
		text = text[:maxTranscriptChars] + "\n[transcript truncated]"
	}
	date := ""
	if !ep.PublishDate.IsZero() {
		date = ep.PublishDate.Format("2006-01-02")
	}
	return map[string]string{
		"title":       ep.Title,
		"description": ep.Description,
		"date":        date,
		"transcript":  text,
	}
}

func parseAndValidate(tmpl template.Template, text string) (map[string]any, error) {
	fields := llm.ParseJSONResponse(text)
	if fields == nil {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	if missing := tmpl.Validate(fields); len(missing) > 0 {
		return nil, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return fields, nil
}

func strictRetryPrompt(tmpl template.Template, user string, cause error) string {
	return fmt.Sprintf(
		"%s\n\nYour previous response was invalid: %v.\nRespond again with ONLY a JSON object containing the fields: %s. No prose, no code fences.",
		user, cause, strings.Join(tmpl.RequiredFields, ", "))
}

// fromCache loads a cached result; undeserializable entries read as misses.
func (e *Engine) fromCache(key string) *Result {
	value, ok, err := e.db.CacheGet(key)
	if err != nil || !ok {
		return nil
	}
	var r Result
	if err := json.Unmarshal(value, &r); err != nil {
		e.log.WithError(err).Warn("corrupt extraction cache entry, treating as miss")
		return nil
	}
	return &r
}

func (e *Engine) toCache(key string, r *Result) {
	value, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := e.db.CachePut(key, value, e.ttl); err != nil {
		e.log.WithError(err).Warn("caching extraction result")
	}
}
