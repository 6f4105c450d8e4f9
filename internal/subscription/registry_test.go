package subscription

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	"github.com/Zentex1337/crypto-tracker-api/pkg/logger"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	reason string
}

func (f *fakeConn) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeConn) Close(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.reason = reason
	return nil
}

type nopMetrics struct{}

func (nopMetrics) RecordConnections(int)          {}
func (nopMetrics) RecordMessageSent(string)       {}
func (nopMetrics) RecordAlertTriggered(string)    {}
func (nopMetrics) RecordRateLimited(string)       {}
func (nopMetrics) RecordCycleDuration(float64)    {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordError(string)             {}

func newTestRegistry(maxConns int) *Registry {
	return NewRegistry(maxConns, []string{"bitcoin", "ethereum", "solana"}, clockwork.NewFakeClock(), logger.Nop(), nopMetrics{})
}

// checkIndexes verifies the bidirectional invariant: a connection appears
// in a symbol's interest set exactly when the symbol is in its own set.
func checkIndexes(t *testing.T, r *Registry) {
	t.Helper()
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.conns {
		for s := range c.symbols {
			require.Contains(t, r.bySymbol[s], c.id, "symbol %s missing conn %s", s, c.id)
		}
	}
	for s, set := range r.bySymbol {
		for id, c := range set {
			require.Contains(t, c.symbols, s, "conn %s missing symbol %s", id, s)
		}
	}
}

func TestRegistry_SubscribeUnsubscribe(t *testing.T) {
	r := newTestRegistry(10)
	c, err := r.Register(&fakeConn{}, "user-1", "10.0.0.1:1234")
	require.NoError(t, err)

	applied, rejected, err := r.Subscribe(c, []string{"bitcoin", "ethereum"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bitcoin", "ethereum"}, applied)
	assert.Empty(t, rejected)
	assert.Len(t, r.ConnectionsInterestedIn("bitcoin"), 1)
	checkIndexes(t, r)

	removed, err := r.Unsubscribe(c, []string{"bitcoin"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bitcoin"}, removed)
	assert.Empty(t, r.ConnectionsInterestedIn("bitcoin"))
	assert.Len(t, r.ConnectionsInterestedIn("ethereum"), 1)
	checkIndexes(t, r)
}

func TestRegistry_SubscribePartialFailure(t *testing.T) {
	r := newTestRegistry(10)
	c, err := r.Register(&fakeConn{}, "", "10.0.0.1:1234")
	require.NoError(t, err)

	applied, rejected, err := r.Subscribe(c, []string{"bitcoin", "dogecoin", "ethereum"})
	require.NoError(t, err)

	// Supported symbols are applied even when others are rejected.
	assert.ElementsMatch(t, []string{"bitcoin", "ethereum"}, applied)
	assert.Equal(t, []string{"dogecoin"}, rejected)
	checkIndexes(t, r)
}

func TestRegistry_SubscribeIdempotent(t *testing.T) {
	r := newTestRegistry(10)
	c, _ := r.Register(&fakeConn{}, "", "a")

	_, _, err := r.Subscribe(c, []string{"bitcoin"})
	require.NoError(t, err)
	accepted, _, err := r.Subscribe(c, []string{"bitcoin", "bitcoin"})
	require.NoError(t, err)

	// A repeat subscribe still acks the symbol, deduped, without
	// double-counting it in the reverse index.
	assert.Equal(t, []string{"bitcoin"}, accepted)
	assert.Len(t, r.ConnectionsInterestedIn("bitcoin"), 1)
	checkIndexes(t, r)
}

func TestRegistry_CapacityExceeded(t *testing.T) {
	r := newTestRegistry(2)

	_, err := r.Register(&fakeConn{}, "", "a")
	require.NoError(t, err)
	_, err = r.Register(&fakeConn{}, "", "b")
	require.NoError(t, err)

	_, err = r.Register(&fakeConn{}, "", "c")
	assert.ErrorIs(t, err, models.ErrCapacityExceeded)
	assert.Equal(t, 2, r.Count())
}

func TestRegistry_DeregisterIdempotent(t *testing.T) {
	r := newTestRegistry(10)
	c, _ := r.Register(&fakeConn{}, "user-1", "a")
	_, _, err := r.Subscribe(c, []string{"bitcoin"})
	require.NoError(t, err)

	assert.True(t, r.Deregister(c))
	assert.False(t, r.Deregister(c))
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.ConnectionsInterestedIn("bitcoin"))
	assert.Empty(t, r.ConnectionsOfUser("user-1"))
}

func TestRegistry_OperationsOnDeregisteredConn(t *testing.T) {
	r := newTestRegistry(10)
	c, _ := r.Register(&fakeConn{}, "", "a")
	r.Deregister(c)

	_, _, err := r.Subscribe(c, []string{"bitcoin"})
	assert.ErrorIs(t, err, models.ErrUnknownConnection)
	_, err = r.Unsubscribe(c, []string{"bitcoin"})
	assert.ErrorIs(t, err, models.ErrUnknownConnection)
}

func TestRegistry_ConnectionsOfUser(t *testing.T) {
	r := newTestRegistry(10)
	mustRegister(t, r, "user-1", "a")
	mustRegister(t, r, "user-1", "b")
	mustRegister(t, r, "user-2", "c")
	mustRegister(t, r, "", "d")

	assert.Len(t, r.ConnectionsOfUser("user-1"), 2)
	assert.Len(t, r.ConnectionsOfUser("user-2"), 1)
	assert.Empty(t, r.ConnectionsOfUser(""))
}

func mustRegister(t *testing.T, r *Registry, userID, addr string) *Connection {
	t.Helper()
	c, err := r.Register(&fakeConn{}, userID, addr)
	require.NoError(t, err)
	return c
}

func TestRegistry_StaleConnections(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(10, []string{"bitcoin"}, clock, logger.Nop(), nopMetrics{})

	old, _ := r.Register(&fakeConn{}, "", "a")
	clock.Advance(10 * time.Minute)

	fresh, _ := r.Register(&fakeConn{}, "", "b")
	r.Touch(fresh)

	stale := r.StaleConnections(5 * time.Minute)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID(), stale[0].ID())
}

func TestRegistry_Drain(t *testing.T) {
	r := newTestRegistry(10)
	fc := &fakeConn{}
	c, _ := r.Register(fc, "", "a")
	_, _, err := r.Subscribe(c, []string{"bitcoin"})
	require.NoError(t, err)

	r.Drain()

	assert.True(t, fc.closed)
	assert.Equal(t, 0, r.Count())

	_, err = r.Register(&fakeConn{}, "", "b")
	assert.ErrorIs(t, err, models.ErrDraining)
}

func TestRegistry_ConcurrentSubscribeDisconnect(t *testing.T) {
	r := newTestRegistry(1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c, err := r.Register(&fakeConn{}, fmt.Sprintf("user-%d", n%7), "addr")
			if err != nil {
				return
			}
			_, _, _ = r.Subscribe(c, []string{"bitcoin", "ethereum"})
			_, _ = r.Unsubscribe(c, []string{"bitcoin"})
			if n%2 == 0 {
				r.Deregister(c)
			}
		}(i)
	}
	wg.Wait()

	checkIndexes(t, r)
	assert.Equal(t, 25, r.Count())
	assert.Len(t, r.ConnectionsInterestedIn("ethereum"), 25)
	assert.Empty(t, r.ConnectionsInterestedIn("bitcoin"))
}
