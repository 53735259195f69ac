// Package retention deletes extraction history older than a configured age.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInterval is the time between prune cycles.
const DefaultInterval = 6 * time.Hour

// Pruner deletes extractions created before a cutoff.
type Pruner interface {
	PruneExtractions(before time.Time) (int64, error)
}

// Service periodically prunes old extractions.
type Service struct {
	store    Pruner
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewService creates a retention service keeping maxAge of history.
func NewService(store Pruner, maxAge time.Duration) *Service {
	return &Service{
		store:    store,
		maxAge:   maxAge,
		interval: DefaultInterval,
		now:      time.Now,
	}
}

// Run prunes once immediately, then every interval. It blocks until the
// context is cancelled. A zero maxAge disables pruning.
func (s *Service) Run(ctx context.Context) {
	if s.maxAge <= 0 {
		log.Info().Msg("extraction retention disabled")
		return
	}
	log.Info().Dur("maxAge", s.maxAge).Dur("interval", s.interval).Msg("starting retention service")

	s.prune()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("retention service stopped")
			return
		case <-ticker.C:
			s.prune()
		}
	}
}

// prune runs one cycle and returns the number of deleted rows.
func (s *Service) prune() int64 {
	cutoff := s.now().Add(-s.maxAge)
	count, err := s.store.PruneExtractions(cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to prune old extractions")
		return 0
	}
	if count > 0 {
		log.Info().Int64("pruned", count).Time("cutoff", cutoff).Msg("pruned old extractions")
	}
	return count
}
