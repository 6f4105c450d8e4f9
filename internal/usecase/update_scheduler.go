package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Zentex1337/crypto-tracker-api/internal/alerts"
	"github.com/Zentex1337/crypto-tracker-api/internal/broadcast"
	"github.com/Zentex1337/crypto-tracker-api/internal/domain/repository"
	"github.com/Zentex1337/crypto-tracker-api/pkg/logger"

	"github.com/jonboulle/clockwork"
)

// CycleStats is the operational surface of the scheduler.
type CycleStats struct {
	Cycles         uint64    `json:"cycles"`
	SkippedTicks   uint64    `json:"skipped_ticks"`
	LastSymbols    int       `json:"last_symbols"`
	LastTriggered  int       `json:"last_triggered"`
	LastRun        time.Time `json:"last_run,omitempty"`
	LastFetchError string    `json:"last_fetch_error,omitempty"`
}

// UpdateScheduler drives the periodic cycle: fetch fresh prices,
// broadcast them, evaluate alerts, announce triggers. At most one cycle
// is in flight; a tick arriving mid-cycle is skipped, not queued.
type UpdateScheduler struct {
	source     repository.PriceSource
	dispatcher *broadcast.Dispatcher
	evaluator  *alerts.Evaluator
	metrics    repository.Metrics
	logger     *logger.Logger
	clock      clockwork.Clock
	interval   time.Duration
	grace      time.Duration

	inFlight atomic.Bool
	cycleWG  sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
	loopDone chan struct{}

	mu    sync.Mutex
	stats CycleStats
}

// NewUpdateScheduler creates a scheduler. grace bounds how long Stop
// waits for an in-flight cycle before abandoning it.
func NewUpdateScheduler(
	source repository.PriceSource,
	dispatcher *broadcast.Dispatcher,
	evaluator *alerts.Evaluator,
	clock clockwork.Clock,
	log *logger.Logger,
	m repository.Metrics,
	interval, grace time.Duration,
) *UpdateScheduler {
	return &UpdateScheduler{
		source:     source,
		dispatcher: dispatcher,
		evaluator:  evaluator,
		metrics:    m,
		logger:     log,
		clock:      clock,
		interval:   interval,
		grace:      grace,
		stopCh:     make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
}

// Start launches the tick loop.
func (s *UpdateScheduler) Start(ctx context.Context) {
	go s.run(ctx)
	s.logger.Info("update scheduler started", logger.Duration("interval_ms", s.interval))
}

func (s *UpdateScheduler) run(ctx context.Context) {
	defer close(s.loopDone)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !s.inFlight.CompareAndSwap(false, true) {
				s.mu.Lock()
				s.stats.SkippedTicks++
				s.mu.Unlock()
				s.logger.Debug("cycle still running, tick skipped")
				continue
			}
			s.cycleWG.Add(1)
			go func() {
				defer s.cycleWG.Done()
				defer s.inFlight.Store(false)
				s.runCycle(ctx)
			}()
		}
	}
}

// RunCycleNow runs one cycle synchronously if none is in flight.
// Exposed for the initial fill on startup.
func (s *UpdateScheduler) RunCycleNow(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer s.inFlight.Store(false)
	s.runCycle(ctx)
}

// runCycle never lets a failure escape: a broken cycle is logged and
// skipped, the process keeps serving.
func (s *UpdateScheduler) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordError("cycle_panic")
			s.logger.Error("update cycle panicked", logger.Any("panic", r))
		}
	}()

	start := s.clock.Now()

	snaps, err := s.source.FetchAll(ctx)
	if err != nil {
		// No update this cycle; the next tick retries.
		s.metrics.RecordError("price_fetch")
		s.logger.Warn("price fetch failed, skipping cycle", logger.Error(err))
		s.mu.Lock()
		s.stats.LastFetchError = err.Error()
		s.mu.Unlock()
		return
	}

	for _, snap := range snaps {
		s.metrics.RecordLastPrice(snap.Symbol, snap.Price)
		s.dispatcher.BroadcastPrice(snap)
	}

	triggered, err := s.evaluator.Evaluate(ctx, snaps)
	if err != nil {
		s.logger.Warn("alert evaluation aborted", logger.Error(err))
	}
	for _, t := range triggered {
		s.dispatcher.NotifyAlertTriggered(ctx, t.Alert, t.Snapshot)
	}

	elapsed := s.clock.Since(start)
	s.metrics.RecordCycleDuration(elapsed.Seconds())

	s.mu.Lock()
	s.stats.Cycles++
	s.stats.LastSymbols = len(snaps)
	s.stats.LastTriggered = len(triggered)
	s.stats.LastRun = start
	s.stats.LastFetchError = ""
	s.mu.Unlock()

	s.logger.Debug("update cycle complete",
		logger.Int("symbols", len(snaps)),
		logger.Int("triggered", len(triggered)),
		logger.Duration("elapsed_ms", elapsed),
	)
}

// Stats returns a copy of the current cycle stats.
func (s *UpdateScheduler) Stats() CycleStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Stop stops accepting ticks and waits up to the shutdown grace for an
// in-flight cycle before abandoning it.
func (s *UpdateScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.loopDone

	done := make(chan struct{})
	go func() {
		s.cycleWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-s.clock.After(s.grace):
		s.logger.Warn("in-flight cycle abandoned on shutdown")
	}
	s.logger.Info("update scheduler stopped")
}
