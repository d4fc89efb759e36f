// Package sweep periodically removes expired KV entries such as cached
// collection totals.
package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval is how often long-running commands sweep.
const DefaultInterval = 5 * time.Minute

// Sweeper deletes expired entries.
type Sweeper interface {
	SweepExpired(ctx context.Context) error
}

// Start sweeps s every interval until ctx is cancelled. It blocks; run it on
// its own goroutine.
func Start(ctx context.Context, s Sweeper, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepExpired(ctx); err != nil {
				log.Debug().Err(err).Msg("kv sweep failed")
			}
		}
	}
}
