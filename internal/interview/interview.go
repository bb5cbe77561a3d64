package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"podnotes/internal/extract"
	"podnotes/internal/feed"
	"podnotes/internal/llm"
	"podnotes/internal/logger"
	"podnotes/internal/store"
	"podnotes/internal/transcript"
	"podnotes/internal/workspace"
)

// NotesFile is the interview transcript file inside the workspace.
const NotesFile = "interview.md"

// contextTurns bounds how many prior turns feed the next question.
const contextTurns = 2

// transcriptExcerptChars bounds the transcript excerpt in the question
// prompt.
const transcriptExcerptChars = 2000

// Control errors an AskFunc can return.
var (
	// ErrDone means the user signalled they are finished; the session
	// completes normally.
	ErrDone = errors.New("interview finished by user")
	// ErrAbort means the user exited; the session is abandoned with all
	// completed turns kept.
	ErrAbort = errors.New("interview aborted by user")
)

// AskFunc presents a question to the user and blocks for the answer. It is
// the only place the pipeline suspends on human input.
type AskFunc func(question string) (string, error)

// Turn is one question/answer exchange.
type Turn struct {
	Question string
	Answer   string
}

// Summary reports how a session ended.
type Summary struct {
	SessionID string
	State     string
	Turns     int
	Cost      float64
}

const questionPrompt = `You are interviewing a podcast listener to capture their personal reflections right after listening. Keep the tone %s.

Episode: %s

Transcript excerpt:
%s

Notes already extracted:
%s

%s

Ask ONE short, open question that helps the listener reflect on what this episode means for them. Avoid yes/no questions and avoid repeating earlier questions.

Respond with ONLY this JSON:
{
    "question": "your question"
}`

// Session is a bounded-turn interview for one episode. Each answered turn
// is flushed to the workspace before the next question is generated, so an
// interrupt never loses completed turns.
type Session struct {
	id       string
	ep       feed.Episode
	db       *store.DB
	provider llm.Provider
	dir      string
	style    string
	maxTurns int
	turns    []Turn
	log      *logrus.Entry
}

// NewSession creates an interview session for an episode workspace.
func NewSession(db *store.DB, provider llm.Provider, ep feed.Episode, dir, style string, maxTurns int) *Session {
	if maxTurns < 1 {
		maxTurns = 1
	}
	return &Session{
		id:       uuid.NewString(),
		ep:       ep,
		db:       db,
		provider: provider,
		dir:      dir,
		style:    style,
		maxTurns: maxTurns,
		log:      logger.New("interview"),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Run drives the interview until max turns, user completion or abort.
// Context cancellation abandons the session; turns flushed so far stay on
// disk either way.
func (s *Session) Run(ctx context.Context, tr *transcript.Transcript, results map[string]extract.Outcome, ask AskFunc) (*Summary, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("no LLM provider available for interview")
	}

	if err := s.db.InsertSession(s.id, s.ep.ID(), s.style); err != nil {
		return nil, err
	}
	header := fmt.Sprintf("# Interview notes\n\nEpisode: %s\nSession: %s\nDate: %s\n\n",
		s.ep.Title, s.id, time.Now().Format("2006-01-02"))
	if err := workspace.AppendLine(s.dir, NotesFile, header); err != nil {
		return nil, err
	}

	var totalCost float64
	state := store.SessionCompleted

	for turn := 0; turn < s.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			state = store.SessionAbandoned
			break
		}

		question, cost, err := s.nextQuestion(ctx, tr, results)
		if err != nil {
			s.finish(store.SessionAbandoned)
			return nil, fmt.Errorf("generating question %d: %w", turn+1, err)
		}
		totalCost += cost
		if err := s.db.AppendCost(store.CostInterview, s.provider.Name(), cost, s.ep.ID()); err != nil {
			s.log.WithError(err).Warn("recording interview cost")
		}

		answer, err := ask(question)
		if err != nil {
			if errors.Is(err, ErrDone) {
				break
			}
			state = store.SessionAbandoned
			if !errors.Is(err, ErrAbort) {
				s.log.WithError(err).Warn("interview input error")
			}
			break
		}

		// Flush this turn before anything else can go wrong.
		s.turns = append(s.turns, Turn{Question: question, Answer: answer})
		entry := fmt.Sprintf("## Q%d: %s\n\n%s\n\n", len(s.turns), question, answer)
		if err := workspace.AppendLine(s.dir, NotesFile, entry); err != nil {
			s.finish(store.SessionAbandoned)
			return nil, fmt.Errorf("flushing turn %d: %w", len(s.turns), err)
		}
		if err := s.db.UpdateSession(s.id, store.SessionActive, len(s.turns)); err != nil {
			s.log.WithError(err).Warn("updating session row")
		}
	}

	s.finish(state)
	return &Summary{SessionID: s.id, State: state, Turns: len(s.turns), Cost: totalCost}, nil
}

func (s *Session) finish(state string) {
	if err := s.db.UpdateSession(s.id, state, len(s.turns)); err != nil {
		s.log.WithError(err).Warn("closing session row")
	}
}

// nextQuestion builds the bounded context window and asks the provider for
// the next question.
func (s *Session) nextQuestion(ctx context.Context, tr *transcript.Transcript, results map[string]extract.Outcome) (string, float64, error) {
	excerpt := tr.Text
	if len(excerpt) > transcriptExcerptChars {
		excerpt = excerpt[:transcriptExcerptChars] + "..."
	}

	style := s.style
	if style == "" {
		style = "reflective"
	}
	prompt := fmt.Sprintf(questionPrompt, style, s.ep.Title, excerpt, formatResults(results), s.recentTurns())

	completion, err := s.provider.Complete(ctx, "", prompt)
	if err != nil {
		return "", 0, err
	}

	parsed := llm.ParseJSONResponse(completion.Text)
	if parsed != nil {
		if q, ok := parsed["question"].(string); ok && strings.TrimSpace(q) != "" {
			return strings.TrimSpace(q), completion.Cost, nil
		}
	}

	// Unparseable output still costs money; fall back to the raw text so
	// the turn is not wasted.
	raw := strings.TrimSpace(completion.Text)
	if raw == "" {
		return "", completion.Cost, fmt.Errorf("provider returned empty question")
	}
	return raw, completion.Cost, nil
}

// recentTurns formats only the last few turns for the prompt window.
func (s *Session) recentTurns() string {
	if len(s.turns) == 0 {
		return "This is the first question."
	}
	start := len(s.turns) - contextTurns
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	b.WriteString("Recent exchanges:\n")
	for _, t := range s.turns[start:] {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", t.Question, t.Answer)
	}
	return b.String()
}

func formatResults(results map[string]extract.Outcome) string {
	if len(results) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for name, o := range results {
		if o.Err != nil || o.Result == nil {
			continue
		}
		data, err := json.Marshal(o.Result.Fields)
		if err != nil {
			continue
		}
		text := string(data)
		if len(text) > 600 {
			text = text[:600] + "..."
		}
		fmt.Fprintf(&b, "%s: %s\n", name, text)
	}
	if b.Len() == 0 {
		return "(none)"
	}
	return b.String()
}
