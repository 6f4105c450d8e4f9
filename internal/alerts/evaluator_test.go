package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	"github.com/Zentex1337/crypto-tracker-api/internal/repository"
	"github.com/Zentex1337/crypto-tracker-api/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordConnections(int)           {}
func (nopMetrics) RecordMessageSent(string)        {}
func (nopMetrics) RecordAlertTriggered(string)     {}
func (nopMetrics) RecordRateLimited(string)        {}
func (nopMetrics) RecordCycleDuration(float64)     {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordError(string)              {}

// failingStore wraps the in-memory store to force batch failures.
type failingStore struct {
	*repository.MemoryAlertStore
	mu       sync.Mutex
	batchErr error
	calls    int
}

func (s *failingStore) MarkTriggeredBatch(ctx context.Context, ids []string, at time.Time) ([]string, error) {
	s.mu.Lock()
	s.calls++
	err := s.batchErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryAlertStore.MarkTriggeredBatch(ctx, ids, at)
}

func mustCreate(t *testing.T, store *repository.MemoryAlertStore, a *models.Alert) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), a))
}

func snap(symbol string, price float64) *models.PriceSnapshot {
	return &models.PriceSnapshot{Symbol: symbol, Price: price}
}

func TestEvaluate_Conditions(t *testing.T) {
	tests := []struct {
		name     string
		alert    models.Alert
		price    float64
		triggers bool
	}{
		{"above met at boundary", models.Alert{Condition: models.ConditionAbove, TargetPrice: 100}, 100, true},
		{"above met", models.Alert{Condition: models.ConditionAbove, TargetPrice: 100}, 150, true},
		{"above not met", models.Alert{Condition: models.ConditionAbove, TargetPrice: 100}, 99.99, false},
		{"below met at boundary", models.Alert{Condition: models.ConditionBelow, TargetPrice: 100}, 100, true},
		{"below met", models.Alert{Condition: models.ConditionBelow, TargetPrice: 100}, 50, true},
		{"below not met", models.Alert{Condition: models.ConditionBelow, TargetPrice: 100}, 100.01, false},
		{"pct up met", models.Alert{Condition: models.ConditionPercentChange, PercentChange: 10, BasePrice: 100}, 110, true},
		{"pct up not met", models.Alert{Condition: models.ConditionPercentChange, PercentChange: 10, BasePrice: 100}, 109, false},
		{"pct up ignores drop", models.Alert{Condition: models.ConditionPercentChange, PercentChange: 10, BasePrice: 100}, 80, false},
		{"pct down met", models.Alert{Condition: models.ConditionPercentChange, PercentChange: -10, BasePrice: 100}, 90, true},
		{"pct down not met", models.Alert{Condition: models.ConditionPercentChange, PercentChange: -10, BasePrice: 100}, 91, false},
		{"pct down ignores rise", models.Alert{Condition: models.ConditionPercentChange, PercentChange: -10, BasePrice: 100}, 120, false},
		{"pct zero never triggers", models.Alert{Condition: models.ConditionPercentChange, PercentChange: 0, BasePrice: 100}, 200, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := repository.NewMemoryAlertStore()
			a := tt.alert
			a.ID = "a1"
			a.UserID = "user-1"
			a.Symbol = "bitcoin"
			a.Active = true
			require.NoError(t, store.Create(context.Background(), &a))

			e := NewEvaluator(store, clockwork.NewFakeClock(), logger.Nop(), nopMetrics{}, 2)
			triggered, err := e.Evaluate(context.Background(), []*models.PriceSnapshot{snap("bitcoin", tt.price)})
			require.NoError(t, err)

			if tt.triggers {
				require.Len(t, triggered, 1)
				assert.Equal(t, "a1", triggered[0].Alert.ID)
				assert.True(t, triggered[0].Alert.Triggered)
				assert.False(t, triggered[0].Alert.Active)
				require.NotNil(t, triggered[0].Alert.TriggeredAt)
			} else {
				assert.Empty(t, triggered)
			}
		})
	}
}

func TestEvaluate_FiresAtMostOnce(t *testing.T) {
	store := repository.NewMemoryAlertStore()
	mustCreate(t, store, &models.Alert{
		ID: "a1", UserID: "user-1", Symbol: "bitcoin",
		Condition: models.ConditionAbove, TargetPrice: 100, Active: true,
	})
	e := NewEvaluator(store, clockwork.NewFakeClock(), logger.Nop(), nopMetrics{}, 2)

	triggered, err := e.Evaluate(context.Background(), []*models.PriceSnapshot{snap("bitcoin", 150)})
	require.NoError(t, err)
	require.Len(t, triggered, 1)

	// Condition still holds on the next cycle but the alert is spent.
	triggered, err = e.Evaluate(context.Background(), []*models.PriceSnapshot{snap("bitcoin", 160)})
	require.NoError(t, err)
	assert.Empty(t, triggered)
}

func TestEvaluate_BatchFailureAbortsPass(t *testing.T) {
	inner := repository.NewMemoryAlertStore()
	store := &failingStore{MemoryAlertStore: inner, batchErr: errors.New("store down")}
	mustCreate(t, inner, &models.Alert{
		ID: "a1", UserID: "user-1", Symbol: "bitcoin",
		Condition: models.ConditionAbove, TargetPrice: 100, Active: true,
	})
	e := NewEvaluator(store, clockwork.NewFakeClock(), logger.Nop(), nopMetrics{}, 2)

	triggered, err := e.Evaluate(context.Background(), []*models.PriceSnapshot{snap("bitcoin", 150)})
	require.Error(t, err)
	assert.Empty(t, triggered)

	// Nothing transitioned: the same pass succeeds once the store is back.
	store.mu.Lock()
	store.batchErr = nil
	store.mu.Unlock()

	triggered, err = e.Evaluate(context.Background(), []*models.PriceSnapshot{snap("bitcoin", 150)})
	require.NoError(t, err)
	assert.Len(t, triggered, 1)
}

func TestEvaluate_DeactivatedDuringPassNotAnnounced(t *testing.T) {
	// A concurrent deactivate between load and persist must suppress the
	// announcement: the batch transition skips non-active alerts.
	inner := repository.NewMemoryAlertStore()
	mustCreate(t, inner, &models.Alert{
		ID: "a1", UserID: "user-1", Symbol: "bitcoin",
		Condition: models.ConditionAbove, TargetPrice: 100, Active: true,
	})
	require.NoError(t, inner.Deactivate(context.Background(), "a1", "user-1"))

	e := NewEvaluator(inner, clockwork.NewFakeClock(), logger.Nop(), nopMetrics{}, 2)
	triggered, err := e.Evaluate(context.Background(), []*models.PriceSnapshot{snap("bitcoin", 150)})
	require.NoError(t, err)
	assert.Empty(t, triggered)
}

func TestEvaluate_MultipleSymbols(t *testing.T) {
	store := repository.NewMemoryAlertStore()
	mustCreate(t, store, &models.Alert{
		ID: "btc-alert", UserID: "u1", Symbol: "bitcoin",
		Condition: models.ConditionAbove, TargetPrice: 100, Active: true,
	})
	mustCreate(t, store, &models.Alert{
		ID: "eth-alert", UserID: "u2", Symbol: "ethereum",
		Condition: models.ConditionBelow, TargetPrice: 50, Active: true,
	})
	mustCreate(t, store, &models.Alert{
		ID: "sol-alert", UserID: "u3", Symbol: "solana",
		Condition: models.ConditionAbove, TargetPrice: 1000, Active: true,
	})

	e := NewEvaluator(store, clockwork.NewFakeClock(), logger.Nop(), nopMetrics{}, 2)
	triggered, err := e.Evaluate(context.Background(), []*models.PriceSnapshot{
		snap("bitcoin", 150),
		snap("ethereum", 40),
		snap("solana", 500),
	})
	require.NoError(t, err)

	ids := make([]string, len(triggered))
	for i, tr := range triggered {
		ids[i] = tr.Alert.ID
	}
	assert.ElementsMatch(t, []string{"btc-alert", "eth-alert"}, ids)
}
