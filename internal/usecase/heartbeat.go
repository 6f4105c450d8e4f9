package usecase

import (
	"context"
	"time"

	"github.com/Zentex1337/crypto-tracker-api/internal/subscription"
	"github.com/Zentex1337/crypto-tracker-api/pkg/logger"

	"github.com/jonboulle/clockwork"
)

const minSweepInterval = 5 * time.Second

// HeartbeatSweeper periodically closes connections with no recent
// activity. A sweep racing a normal disconnect is harmless: Deregister
// is idempotent and the loser is a no-op.
type HeartbeatSweeper struct {
	registry *subscription.Registry
	clock    clockwork.Clock
	logger   *logger.Logger
	maxAge   time.Duration
	interval time.Duration
	stopCh   chan struct{}
	done     chan struct{}
}

// NewHeartbeatSweeper sweeps at half the max connection age, floored.
func NewHeartbeatSweeper(reg *subscription.Registry, clock clockwork.Clock, log *logger.Logger, maxAge time.Duration) *HeartbeatSweeper {
	interval := maxAge / 2
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	return &HeartbeatSweeper{
		registry: reg,
		clock:    clock,
		logger:   log,
		maxAge:   maxAge,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (h *HeartbeatSweeper) Start(ctx context.Context) {
	go func() {
		defer close(h.done)
		ticker := h.clock.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				h.Sweep()
			}
		}
	}()
}

// Sweep closes every stale connection once.
func (h *HeartbeatSweeper) Sweep() {
	stale := h.registry.StaleConnections(h.maxAge)
	for _, c := range stale {
		if h.registry.Deregister(c) {
			_ = c.Close("idle timeout")
			h.logger.Debug("stale connection closed", logger.String("conn_id", c.ID()))
		}
	}
}

// Stop terminates the sweep loop.
func (h *HeartbeatSweeper) Stop() {
	close(h.stopCh)
	<-h.done
}
