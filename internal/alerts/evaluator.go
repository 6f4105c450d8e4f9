package alerts

import (
	"context"
	"fmt"
	"sync"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	"github.com/Zentex1337/crypto-tracker-api/internal/domain/repository"
	"github.com/Zentex1337/crypto-tracker-api/pkg/logger"

	"github.com/jonboulle/clockwork"
)

const defaultWorkers = 4

// Evaluator checks batches of fresh prices against persisted alert
// conditions. All triggers found in one pass are persisted in a single
// batch transition before any is announced, so a retried pass can never
// announce an alert twice.
type Evaluator struct {
	store   repository.AlertStore
	clock   clockwork.Clock
	logger  *logger.Logger
	metrics repository.Metrics
	workers int
}

// NewEvaluator creates an evaluator with the given symbol-level
// concurrency. workers <= 0 selects the default.
func NewEvaluator(store repository.AlertStore, clock clockwork.Clock, log *logger.Logger, m repository.Metrics, workers int) *Evaluator {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Evaluator{store: store, clock: clock, logger: log, metrics: m, workers: workers}
}

// Evaluate checks every snapshot against the active alerts for its
// symbol and returns the alerts that fired, already persisted as
// triggered. A persistence failure on the batch aborts the whole pass:
// nothing is announced and the alerts stay active for the next cycle.
func (e *Evaluator) Evaluate(ctx context.Context, snaps []*models.PriceSnapshot) ([]models.TriggeredAlert, error) {
	if len(snaps) == 0 {
		return nil, nil
	}

	var (
		mu         sync.Mutex
		candidates []models.TriggeredAlert
	)

	// Symbols are independent; evaluate them concurrently with a
	// bounded fan-out.
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for _, snap := range snaps {
		wg.Add(1)
		sem <- struct{}{}
		go func(snap *models.PriceSnapshot) {
			defer wg.Done()
			defer func() { <-sem }()

			found, err := e.evaluateSymbol(ctx, snap)
			if err != nil {
				e.metrics.RecordError("alert_load")
				e.logger.Warn("load alerts failed, skipping symbol",
					logger.String("symbol", snap.Symbol),
					logger.Error(err),
				)
				return
			}
			if len(found) == 0 {
				return
			}
			mu.Lock()
			candidates = append(candidates, found...)
			mu.Unlock()
		}(snap)
	}
	wg.Wait()

	if len(candidates) == 0 {
		return nil, nil
	}

	now := e.clock.Now()
	ids := make([]string, len(candidates))
	for i, t := range candidates {
		ids[i] = t.Alert.ID
	}

	confirmed, err := e.store.MarkTriggeredBatch(ctx, ids, now)
	if err != nil {
		// No partial announce: the alerts remain non-triggered and the
		// next evaluation pass retries them.
		e.metrics.RecordError("alert_persist")
		return nil, fmt.Errorf("mark triggered batch: %w", err)
	}

	confirmedSet := make(map[string]struct{}, len(confirmed))
	for _, id := range confirmed {
		confirmedSet[id] = struct{}{}
	}

	triggered := candidates[:0]
	for _, t := range candidates {
		if _, ok := confirmedSet[t.Alert.ID]; !ok {
			// Deactivated or deleted since evaluation; its pending
			// trigger is superseded.
			continue
		}
		t.Alert.Triggered = true
		t.Alert.Active = false
		ts := now
		t.Alert.TriggeredAt = &ts
		triggered = append(triggered, t)
	}

	return triggered, nil
}

func (e *Evaluator) evaluateSymbol(ctx context.Context, snap *models.PriceSnapshot) ([]models.TriggeredAlert, error) {
	alerts, err := e.store.LoadActiveBySymbol(ctx, snap.Symbol)
	if err != nil {
		return nil, err
	}

	var found []models.TriggeredAlert
	for _, a := range alerts {
		if a.ShouldTrigger(snap.Price) {
			found = append(found, models.TriggeredAlert{Alert: a, Snapshot: snap})
		}
	}
	return found, nil
}
