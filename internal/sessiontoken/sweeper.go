package sessiontoken

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agor-live/agor/internal/definitions"
)

// Sweeper runs the expired-token sweep on a fixed cadence. It is a thin
// scheduler around Service.SweepExpired so tests can drive the sweep
// directly without waiting on wall-clock time.
type Sweeper struct {
	service  Service
	interval time.Duration

	stop     chan struct{}
	stopOnce sync.Once

	logger *slog.Logger
}

// NewSweeper creates a sweeper for the given service. A non-positive interval
// falls back to the hourly default.
func NewSweeper(s Service, interval time.Duration) *Sweeper {

	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Sweeper{
		service:  s,
		interval: interval,
		stop:     make(chan struct{}),

		logger: slog.Default().
			With(slog.String(definitions.ServiceKey, definitions.ServiceName)).
			With(slog.String(definitions.PackageKey, definitions.PackageSessionToken)).
			With(slog.String(definitions.ComponentKey, definitions.ComponentTokenSweeper)),
	}
}

// Start launches the sweep loop in its own goroutine.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop halts the sweep loop. Safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Sweeper) run() {

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if evicted := s.service.SweepExpired(); evicted > 0 {
				s.logger.Info(fmt.Sprintf("periodic sweep evicted %d expired session token(s), %d remain active",
					evicted, s.service.ActiveCount()))
			}
		case <-s.stop:
			return
		}
	}
}
