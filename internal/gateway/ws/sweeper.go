package ws

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper closes sessions that have been silent longer than the idle
// timeout. It runs for the life of the service and stops with its context.
// An idle timeout of zero disables the sweep entirely.
type Sweeper struct {
	reg         *Registry
	interval    time.Duration
	idleTimeout time.Duration
	lg          zerolog.Logger
}

func NewSweeper(reg *Registry, interval, idleTimeout time.Duration, lg zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		reg:         reg,
		interval:    interval,
		idleTimeout: idleTimeout,
		lg:          lg.With().Str("component", "idle_sweeper").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.idleTimeout <= 0 {
		s.lg.Info().Msg("idle sweep disabled")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	cutoff := time.Now().Add(-s.idleTimeout)
	for _, id := range s.reg.idleSince(cutoff) {
		s.lg.Warn().Str("connection_id", id).Msg("closing idle connection")
		s.reg.CloseAndRemove(id, ClosePolicy, "Idle timeout")
	}
}
