package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	domainrepo "github.com/Zentex1337/crypto-tracker-api/internal/domain/repository"
)

// Both backends must behave identically; every test runs against each.
func forEachStore(t *testing.T, fn func(t *testing.T, store domainrepo.AlertStore)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryAlertStore())
	})
	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		fn(t, NewRedisAlertStore(rdb))
	})
}

func testAlert(id, owner string) *models.Alert {
	return &models.Alert{
		ID:          id,
		UserID:      owner,
		Symbol:      "bitcoin",
		Condition:   models.ConditionAbove,
		TargetPrice: 50000,
		Active:      true,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestAlertStore_CreateAndList(t *testing.T) {
	forEachStore(t, func(t *testing.T, store domainrepo.AlertStore) {
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, testAlert("a1", "user-1")))
		require.NoError(t, store.Create(ctx, testAlert("a2", "user-1")))
		require.NoError(t, store.Create(ctx, testAlert("b1", "user-2")))

		alerts, err := store.ListByOwner(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, alerts, 2)
		for _, a := range alerts {
			assert.Equal(t, "user-1", a.UserID)
			assert.Equal(t, "bitcoin", a.Symbol)
			assert.Equal(t, models.ConditionAbove, a.Condition)
			assert.True(t, a.Active)
			assert.False(t, a.Triggered)
		}
	})
}

func TestAlertStore_CreateRejectsInvalid(t *testing.T) {
	forEachStore(t, func(t *testing.T, store domainrepo.AlertStore) {
		a := testAlert("a1", "user-1")
		a.TargetPrice = 0
		assert.Error(t, store.Create(context.Background(), a))
	})
}

func TestAlertStore_LoadActiveBySymbol(t *testing.T) {
	forEachStore(t, func(t *testing.T, store domainrepo.AlertStore) {
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, testAlert("a1", "user-1")))

		eth := testAlert("a2", "user-1")
		eth.Symbol = "ethereum"
		require.NoError(t, store.Create(ctx, eth))

		alerts, err := store.LoadActiveBySymbol(ctx, "bitcoin")
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, "a1", alerts[0].ID)

		// Deactivated alerts drop out of the symbol view.
		require.NoError(t, store.Deactivate(ctx, "a1", "user-1"))
		alerts, err = store.LoadActiveBySymbol(ctx, "bitcoin")
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})
}

func TestAlertStore_MarkTriggeredBatch(t *testing.T) {
	forEachStore(t, func(t *testing.T, store domainrepo.AlertStore) {
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, testAlert("a1", "user-1")))
		require.NoError(t, store.Create(ctx, testAlert("a2", "user-1")))

		at := time.Now().UTC().Truncate(time.Millisecond)
		confirmed, err := store.MarkTriggeredBatch(ctx, []string{"a1", "a2"}, at)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a1", "a2"}, confirmed)

		alerts, err := store.ListByOwner(ctx, "user-1")
		require.NoError(t, err)
		for _, a := range alerts {
			assert.True(t, a.Triggered)
			assert.False(t, a.Active)
			require.NotNil(t, a.TriggeredAt)
		}

		// Triggered alerts leave the active-by-symbol view.
		active, err := store.LoadActiveBySymbol(ctx, "bitcoin")
		require.NoError(t, err)
		assert.Empty(t, active)
	})
}

func TestAlertStore_MarkTriggeredSkipsNonActive(t *testing.T) {
	forEachStore(t, func(t *testing.T, store domainrepo.AlertStore) {
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, testAlert("a1", "user-1")))
		require.NoError(t, store.Create(ctx, testAlert("a2", "user-1")))
		require.NoError(t, store.Create(ctx, testAlert("a3", "user-1")))

		// a1 deactivated, a3 deleted between evaluation and persist.
		require.NoError(t, store.Deactivate(ctx, "a1", "user-1"))
		require.NoError(t, store.Delete(ctx, "a3", "user-1"))

		confirmed, err := store.MarkTriggeredBatch(ctx, []string{"a1", "a2", "a3"}, time.Now())
		require.NoError(t, err)
		assert.Equal(t, []string{"a2"}, confirmed)
	})
}

func TestAlertStore_MarkTriggeredIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store domainrepo.AlertStore) {
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, testAlert("a1", "user-1")))

		confirmed, err := store.MarkTriggeredBatch(ctx, []string{"a1"}, time.Now())
		require.NoError(t, err)
		require.Equal(t, []string{"a1"}, confirmed)

		confirmed, err = store.MarkTriggeredBatch(ctx, []string{"a1"}, time.Now())
		require.NoError(t, err)
		assert.Empty(t, confirmed)
	})
}

func TestAlertStore_OwnerScoping(t *testing.T) {
	forEachStore(t, func(t *testing.T, store domainrepo.AlertStore) {
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, testAlert("a1", "user-1")))

		// Another user cannot touch or even observe the alert.
		assert.ErrorIs(t, store.Deactivate(ctx, "a1", "user-2"), models.ErrAlertNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "a1", "user-2"), models.ErrAlertNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "missing", "user-1"), models.ErrAlertNotFound)

		alerts, err := store.ListByOwner(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, alerts, 1)
	})
}

func TestAlertStore_Delete(t *testing.T) {
	forEachStore(t, func(t *testing.T, store domainrepo.AlertStore) {
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, testAlert("a1", "user-1")))
		require.NoError(t, store.Delete(ctx, "a1", "user-1"))

		alerts, err := store.ListByOwner(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, alerts)

		active, err := store.LoadActiveBySymbol(ctx, "bitcoin")
		require.NoError(t, err)
		assert.Empty(t, active)
	})
}

func TestAlertStore_CountActive(t *testing.T) {
	forEachStore(t, func(t *testing.T, store domainrepo.AlertStore) {
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, testAlert("a1", "user-1")))
		require.NoError(t, store.Create(ctx, testAlert("a2", "user-1")))
		require.NoError(t, store.Create(ctx, testAlert("a3", "user-1")))

		n, err := store.CountActive(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		require.NoError(t, store.Deactivate(ctx, "a1", "user-1"))
		_, err = store.MarkTriggeredBatch(ctx, []string{"a2"}, time.Now())
		require.NoError(t, err)

		n, err = store.CountActive(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}
