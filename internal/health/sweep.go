// Package health runs the registry's background health-evaluation sweep
// (spec §4.D/§4.F: "the single authoritative sweep... runs in the registry
// process"). It is grounded on the teacher's mcp/handler.go SSE keep-alive
// loop, which drives a time.Ticker inside a cancelable goroutine in the
// same shape.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/meshfabric/core/internal/store"
)

// DefaultSweepInterval is health_sweep_interval's default (spec §4.D).
const DefaultSweepInterval = 5 * time.Second

// Sweeper periodically evaluates agent liveness against their declared
// thresholds.
type Sweeper struct {
	store    *store.Store
	interval time.Duration
	log      *zap.SugaredLogger
}

// New creates a Sweeper. A non-positive interval falls back to the
// registry default.
func New(s *store.Store, interval time.Duration, log *zap.SugaredLogger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: s, interval: interval, log: log}
}

// Run blocks, sweeping on a fixed interval until ctx is canceled.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	if sw.log != nil {
		sw.log.Infow("health sweep started", "interval", sw.interval)
	}

	for {
		select {
		case <-ctx.Done():
			if sw.log != nil {
				sw.log.Infow("health sweep stopped")
			}
			return
		case <-ticker.C:
			sw.store.SweepOnce(time.Now().UTC())
		}
	}
}
