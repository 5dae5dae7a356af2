package store

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Purger drops reservations that expired at or before now.
type Purger interface {
	Purge(now time.Time) int
}

// Sweeper periodically purges expired ledger reservations so that memory is
// reclaimed even when no new signal arrives.
type Sweeper struct {
	interval time.Duration
	ledger   Purger
	logger   *logrus.Entry
}

// NewSweeper creates a Sweeper ticking at interval.
func NewSweeper(interval time.Duration, ledger Purger, logger *logrus.Logger) *Sweeper {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sweeper{
		interval: interval,
		ledger:   ledger,
		logger:   logger.WithField("component", "ledger-sweeper"),
	}
}

// Start launches a background goroutine that ticks at the configured
// interval and purges the ledger. It stops when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				s.tick(t)
			}
		}
	}()
}

func (s *Sweeper) tick(now time.Time) {
	if n := s.ledger.Purge(now); n > 0 {
		s.logger.WithField("purged", n).Debug("purged expired ledger entries")
	}
}
