package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"podnotes/internal/feed"
	"podnotes/internal/logger"
	"podnotes/internal/store"
)

// Selector tries strategies in order until one yields a transcript,
// consulting the content cache before any network call and recording the
// acquisition cost of paid strategies.
type Selector struct {
	strategies []Strategy
	db         *store.DB
	ttl        time.Duration
	log        *logrus.Entry
}

// NewSelector builds a selector over the given strategies, tried in order.
func NewSelector(db *store.DB, ttl time.Duration, strategies ...Strategy) *Selector {
	return &Selector{
		strategies: strategies,
		db:         db,
		ttl:        ttl,
		log:        logger.New("transcript"),
	}
}

// Resolve returns a transcript for the episode or a *NoTranscriptError when
// every strategy was declined or failed. Strategy failures are non-fatal
// and advance to the next strategy.
func (s *Selector) Resolve(ctx context.Context, ep feed.Episode) (*Transcript, error) {
	var attempts []Attempt

	for _, strat := range s.strategies {
		key := cacheKey(ep, strat.Tag())
		if cached := s.fromCache(key); cached != nil {
			s.log.WithFields(logrus.Fields{"episode": ep.ID(), "source": strat.Tag()}).
				Debug("transcript cache hit")
			return cached, nil
		}

		tr, err := strat.Fetch(ctx, ep)
		if err != nil {
			reason := err.Error()
			if errors.Is(err, ErrDeclined) {
				s.log.WithFields(logrus.Fields{"episode": ep.ID(), "source": strat.Tag()}).
					Debug("strategy declined")
			} else {
				s.log.WithError(err).WithField("source", strat.Tag()).Warn("strategy failed")
			}
			attempts = append(attempts, Attempt{Strategy: strat.Tag(), Reason: reason})
			continue
		}

		// The acquisition cost is recorded once, here. Cache hits on later
		// runs reuse the result without paying again.
		if tr.Cost > 0 {
			if err := s.db.AppendCost(store.CostTranscription, strat.Tag(), tr.Cost, ep.ID()); err != nil {
				s.log.WithError(err).Warn("recording transcription cost")
			}
		}
		s.toCache(key, tr)

		s.log.WithFields(logrus.Fields{
			"episode": ep.ID(),
			"source":  strat.Tag(),
			"chars":   len(tr.Text),
		}).Info("transcript obtained")
		return tr, nil
	}

	return nil, &NoTranscriptError{EpisodeID: ep.ID(), Attempts: attempts}
}

func cacheKey(ep feed.Episode, tag string) string {
	return store.CacheKey("transcript", ep.ID(), tag)
}

// fromCache loads a cached transcript. Entries that cannot be deserialized
// read as misses rather than errors.
func (s *Selector) fromCache(key string) *Transcript {
	value, ok, err := s.db.CacheGet(key)
	if err != nil || !ok {
		return nil
	}
	var tr Transcript
	if err := json.Unmarshal(value, &tr); err != nil {
		s.log.WithError(err).Warn("corrupt transcript cache entry, treating as miss")
		return nil
	}
	return &tr
}

func (s *Selector) toCache(key string, tr *Transcript) {
	value, err := json.Marshal(tr)
	if err != nil {
		return
	}
	if err := s.db.CachePut(key, value, s.ttl); err != nil {
		s.log.WithError(err).Warn("caching transcript")
	}
}
