// Package pipeline orchestrates the per-episode processing run: transcript
// acquisition, template selection, extraction, note writing and the
// optional interview.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"podnotes/internal/config"
	"podnotes/internal/extract"
	"podnotes/internal/feed"
	"podnotes/internal/interview"
	"podnotes/internal/llm"
	"podnotes/internal/logger"
	"podnotes/internal/store"
	"podnotes/internal/template"
	"podnotes/internal/transcript"
	"podnotes/internal/workspace"
)

// Pipeline stages, in execution order.
const (
	StageTranscript = "transcript"
	StageSelect     = "select"
	StageExtract    = "extract"
	StageWrite      = "write"
	StageInterview  = "interview"
	StageMetadata   = "metadata"
)

// Progress statuses.
const (
	StatusStart   = "start"
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ProgressSink receives stage transitions while a run executes.
type ProgressSink interface {
	Emit(stage, status, detail string)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(stage, status, detail string)

func (f ProgressFunc) Emit(stage, status, detail string) { f(stage, status, detail) }

// Options control a single run.
type Options struct {
	// Templates overrides template selection entirely when non-empty.
	Templates []string
	// Interview enables the post-extraction interview; Ask supplies answers.
	Interview bool
	Ask       interview.AskFunc
	Progress  ProgressSink
}

// TemplateReport is the per-template outcome of a run.
type TemplateReport struct {
	Status   string // ok | failed
	Provider string
	Cost     float64
	File     string
	Cached   bool
	Error    string
}

// Summary is the result of a full run.
type Summary struct {
	EpisodeID        string
	Workspace        string
	TranscriptSource string
	Templates        map[string]TemplateReport
	FailedFiles      []string
	Interview        *interview.Summary
	InterviewErr     error
	TotalCost        float64
	Elapsed          time.Duration
}

// Succeeded reports how many templates produced a written note.
func (s *Summary) Succeeded() int {
	n := 0
	for _, t := range s.Templates {
		if t.Status == "ok" {
			n++
		}
	}
	return n
}

// PlannedTemplate is one entry of a dry run.
type PlannedTemplate struct {
	Name     string
	Provider string
	CostTier string
}

// Pipeline wires the processing stages for one configuration.
type Pipeline struct {
	cfg      *config.Config
	db       *store.DB
	registry *llm.Registry
	lib      *template.Library
	selector *transcript.Selector
	engine   *extract.Engine
	log      *logrus.Entry
}

// New builds a production pipeline from the configuration. User templates
// are loaded from templates.yaml next to the config file when present.
func New(cfg *config.Config, db *store.DB) (*Pipeline, error) {
	lib, err := template.LoadLibrary(filepath.Join(config.ConfigDir(), "templates.yaml"))
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	registry := llm.NewRegistry(cfg.Extraction)

	selector := transcript.NewSelector(db, ttlDays(cfg.Transcription.TTLDays),
		transcript.NewFreeStrategy(30*time.Second),
		transcript.NewPaidStrategy(cfg.Transcription.ServiceURL, cfg.Transcription.APIKeyEnv),
	)

	engine := extract.New(db, registry, lib, ttlDays(cfg.Extraction.TTLDays),
		cfg.Extraction.Concurrency, cfg.Extraction.PromptVersion)

	return &Pipeline{
		cfg:      cfg,
		db:       db,
		registry: registry,
		lib:      lib,
		selector: selector,
		engine:   engine,
		log:      logger.New("pipeline"),
	}, nil
}

// Workspace returns the output directory for an episode.
func (p *Pipeline) Workspace(ep feed.Episode) string {
	return filepath.Join(p.cfg.GetNotesDir(), workspace.DirName(ep))
}

// Run processes one episode end to end. A missing transcript is fatal;
// individual template or file failures are reported in the summary. The
// run fails when no template produces a written note.
func (p *Pipeline) Run(ctx context.Context, ep feed.Episode, opts Options) (*Summary, error) {
	start := time.Now()
	emit := sink(opts.Progress)
	dir := p.Workspace(ep)
	summary := &Summary{
		EpisodeID: ep.ID(),
		Workspace: dir,
		Templates: make(map[string]TemplateReport),
	}

	// Transcript. Nothing downstream can run without one.
	emit.Emit(StageTranscript, StatusStart, "")
	tr, err := p.selector.Resolve(ctx, ep)
	if err != nil {
		emit.Emit(StageTranscript, StatusFailed, err.Error())
		return summary, err
	}
	summary.TranscriptSource = tr.Source
	summary.TotalCost += tr.Cost
	emit.Emit(StageTranscript, StatusOK, tr.Source)

	// Template selection.
	names := template.Select(ep, p.cfg.Categories, p.cfg.Extraction.DefaultTemplates, opts.Templates)
	emit.Emit(StageSelect, StatusOK, fmt.Sprintf("%d templates", len(names)))
	if len(names) == 0 {
		return summary, fmt.Errorf("no templates selected for episode %s", ep.ID())
	}

	// Extraction.
	emit.Emit(StageExtract, StatusStart, "")
	outcomes := p.engine.Run(ctx, ep, tr, names)

	var files []workspace.File
	for name, o := range outcomes {
		report := TemplateReport{Status: "ok"}
		if o.Err != nil {
			report.Status = "failed"
			report.Error = o.Err.Error()
			p.log.WithError(o.Err).WithField("template", name).Warn("template failed")
		} else {
			report.Provider = o.Result.Provider
			report.Cost = o.Result.Cost
			report.Cached = o.Result.Cached
			report.File = name + ".md"
			summary.TotalCost += o.Result.Cost
			files = append(files, workspace.File{
				Name:    report.File,
				Content: []byte(noteMarkdown(ep, name, o.Result)),
			})
		}
		summary.Templates[name] = report
	}
	emit.Emit(StageExtract, StatusOK, fmt.Sprintf("%d ok, %d failed", len(files), len(names)-len(files)))
	if len(files) == 0 {
		return summary, fmt.Errorf("all templates failed for episode %s", ep.ID())
	}

	// Write notes.
	emit.Emit(StageWrite, StatusStart, dir)
	batch, err := workspace.WriteBatch(dir, files)
	if err != nil {
		emit.Emit(StageWrite, StatusFailed, err.Error())
		return summary, fmt.Errorf("writing workspace: %w", err)
	}
	for _, f := range batch.Failed() {
		summary.FailedFiles = append(summary.FailedFiles, f.Name)
		report := summary.Templates[fileTemplate(f.Name)]
		report.Status = "failed"
		report.Error = f.Err.Error()
		summary.Templates[fileTemplate(f.Name)] = report
	}
	if summary.Succeeded() == 0 {
		emit.Emit(StageWrite, StatusFailed, "no notes written")
		return summary, fmt.Errorf("no notes written for episode %s", ep.ID())
	}
	emit.Emit(StageWrite, StatusOK, fmt.Sprintf("%d files", len(files)-len(summary.FailedFiles)))

	// Interview. Failures here never undo the written notes.
	if opts.Interview && opts.Ask != nil {
		emit.Emit(StageInterview, StatusStart, "")
		sess := interview.NewSession(p.db, p.registry.Default(), ep, dir,
			p.cfg.Interview.Style, p.cfg.Interview.MaxTurns)
		isum, err := sess.Run(ctx, tr, outcomes, opts.Ask)
		if err != nil {
			summary.InterviewErr = err
			emit.Emit(StageInterview, StatusFailed, err.Error())
		} else {
			summary.Interview = isum
			summary.TotalCost += isum.Cost
			emit.Emit(StageInterview, StatusOK, fmt.Sprintf("%d turns (%s)", isum.Turns, isum.State))
		}
	} else {
		emit.Emit(StageInterview, StatusSkipped, "")
	}

	// Metadata.
	if err := workspace.WriteMetadata(dir, p.metadata(ep, tr, summary)); err != nil {
		emit.Emit(StageMetadata, StatusFailed, err.Error())
		return summary, fmt.Errorf("writing metadata: %w", err)
	}
	emit.Emit(StageMetadata, StatusOK, "")

	summary.Elapsed = time.Since(start)
	return summary, nil
}

// Interview runs only the reflection interview for an episode processed
// earlier. The transcript and extraction results come from the cache when
// still valid, so the usual case makes no extraction calls.
func (p *Pipeline) Interview(ctx context.Context, ep feed.Episode, ask interview.AskFunc) (*interview.Summary, error) {
	tr, err := p.selector.Resolve(ctx, ep)
	if err != nil {
		return nil, err
	}
	names := template.Select(ep, p.cfg.Categories, p.cfg.Extraction.DefaultTemplates, nil)
	outcomes := p.engine.Run(ctx, ep, tr, names)

	sess := interview.NewSession(p.db, p.registry.Default(), ep, p.Workspace(ep),
		p.cfg.Interview.Style, p.cfg.Interview.MaxTurns)
	return sess.Run(ctx, tr, outcomes, ask)
}

// DryRun reports what a run would do without touching the network or the
// paid transcription service.
func (p *Pipeline) DryRun(ep feed.Episode, override []string) []PlannedTemplate {
	names := template.Select(ep, p.cfg.Categories, p.cfg.Extraction.DefaultTemplates, override)
	planned := make([]PlannedTemplate, 0, len(names))
	for _, name := range names {
		entry := PlannedTemplate{Name: name}
		if tmpl, ok := p.lib.Get(name); ok {
			entry.Provider = tmpl.Provider
			entry.CostTier = tmpl.CostTier
		}
		if entry.Provider == "" {
			entry.Provider = p.cfg.Extraction.Provider
		}
		if entry.CostTier == "" {
			entry.CostTier = "free"
		}
		planned = append(planned, entry)
	}
	return planned
}

func (p *Pipeline) metadata(ep feed.Episode, tr *transcript.Transcript, s *Summary) *workspace.Metadata {
	md := &workspace.Metadata{
		FeedID:           ep.FeedID,
		EpisodeID:        ep.EpisodeID,
		Title:            ep.Title,
		TranscriptSource: tr.Source,
		Templates:        make(map[string]workspace.TemplateStatus, len(s.Templates)),
		TotalCost:        s.TotalCost,
		ProcessedAt:      time.Now(),
	}
	if !ep.PublishDate.IsZero() {
		md.PublishDate = ep.PublishDate.Format("2006-01-02")
	}
	if s.Interview != nil {
		md.InterviewSession = s.Interview.SessionID
	}
	for name, t := range s.Templates {
		md.Templates[name] = workspace.TemplateStatus{
			Status:   t.Status,
			Provider: t.Provider,
			Cost:     t.Cost,
			File:     t.File,
			Error:    t.Error,
			Cached:   t.Cached,
		}
	}
	return md
}

func ttlDays(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

func fileTemplate(file string) string {
	return file[:len(file)-len(filepath.Ext(file))]
}

type nopSink struct{}

func (nopSink) Emit(string, string, string) {}

func sink(s ProgressSink) ProgressSink {
	if s == nil {
		return nopSink{}
	}
	return s
}
