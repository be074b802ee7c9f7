package vectorindex

import (
	"context"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
)

const DefaultSweepInterval = time.Minute

type purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Sweeper runs PurgeExpired periodically in its own goroutine.
type Sweeper struct {
	index    purger
	interval time.Duration
}

func NewSweeper(index purger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{index: index, interval: interval}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger := logging.From(ctx)
	logger.Debug("ttl sweeper started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			logger.Debug("ttl sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.index.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("failed to purge expired entries", "error", err)
				}
				continue
			}
			if n > 0 {
				logger.Info("purged expired entries", "count", n)
			}
		}
	}
}
