package pending

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/clock"
)

const DefaultSweepInterval = 10 * time.Minute

// Sweeper purges expired pending orders, on demand or on a ticker.
type Sweeper struct {
	repo     Repository
	clock    clock.Clock
	interval time.Duration
}

func NewSweeper(repo Repository, c clock.Clock, interval time.Duration) *Sweeper {
	if c == nil {
		c = clock.NewSystem()
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{repo: repo, clock: c, interval: interval}
}

// Sweep deletes every entry with expires_at before now and returns how
// many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("pending: sweep failed: %w", err)
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Msg("pending: expired entries swept")
	}
	return removed, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("pending: sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("pending: sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("pending: scheduled sweep failed")
			}
		}
	}
}
