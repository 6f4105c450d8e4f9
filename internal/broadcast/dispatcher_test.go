package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	"github.com/Zentex1337/crypto-tracker-api/internal/subscription"
	"github.com/Zentex1337/crypto-tracker-api/pkg/logger"
)

type fakeConn struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	closed  bool
}

func (f *fakeConn) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeConn) Close(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

type nopMetrics struct{}

func (nopMetrics) RecordConnections(int)           {}
func (nopMetrics) RecordMessageSent(string)        {}
func (nopMetrics) RecordAlertTriggered(string)     {}
func (nopMetrics) RecordRateLimited(string)        {}
func (nopMetrics) RecordCycleDuration(float64)     {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordError(string)              {}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *fakePublisher) PublishAlertTriggered(_ context.Context, alert *models.Alert, _ *models.PriceSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, alert.ID)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func newTestRegistry() *subscription.Registry {
	return subscription.NewRegistry(100, []string{"bitcoin", "ethereum"}, clockwork.NewFakeClock(), logger.Nop(), nopMetrics{})
}

func subscribe(t *testing.T, r *subscription.Registry, fc *fakeConn, userID string, symbols ...string) *subscription.Connection {
	t.Helper()
	c, err := r.Register(fc, userID, "addr")
	require.NoError(t, err)
	if len(symbols) > 0 {
		_, _, err = r.Subscribe(c, symbols)
		require.NoError(t, err)
	}
	return c
}

func TestDispatcher_BroadcastExactlyOnce(t *testing.T) {
	r := newTestRegistry()
	d := NewDispatcher(r, logger.Nop(), nopMetrics{}, nil)

	btc := &fakeConn{}
	eth := &fakeConn{}
	both := &fakeConn{}
	subscribe(t, r, btc, "", "bitcoin")
	subscribe(t, r, eth, "", "ethereum")
	subscribe(t, r, both, "", "bitcoin", "ethereum")

	d.BroadcastPrice(&models.PriceSnapshot{Symbol: "bitcoin", Price: 50000})

	assert.Len(t, btc.messages(), 1)
	assert.Empty(t, eth.messages())
	assert.Len(t, both.messages(), 1)

	var env models.Envelope
	require.NoError(t, json.Unmarshal(btc.messages()[0], &env))
	assert.Equal(t, models.MsgPriceUpdate, env.Type)
}

func TestDispatcher_NoSubscribersNoMessages(t *testing.T) {
	r := newTestRegistry()
	d := NewDispatcher(r, logger.Nop(), nopMetrics{}, nil)

	fc := &fakeConn{}
	subscribe(t, r, fc, "") // connected, subscribed to nothing

	d.BroadcastPrice(&models.PriceSnapshot{Symbol: "bitcoin", Price: 50000})
	assert.Empty(t, fc.messages())
}

func TestDispatcher_DeadConnDeregistered(t *testing.T) {
	r := newTestRegistry()
	d := NewDispatcher(r, logger.Nop(), nopMetrics{}, nil)

	dead := &fakeConn{sendErr: errors.New("broken pipe")}
	alive := &fakeConn{}
	subscribe(t, r, dead, "", "bitcoin")
	subscribe(t, r, alive, "", "bitcoin")

	d.BroadcastPrice(&models.PriceSnapshot{Symbol: "bitcoin", Price: 50000})

	// The healthy connection still got its copy.
	assert.Len(t, alive.messages(), 1)
	assert.True(t, dead.closed)
	assert.Equal(t, 1, r.Count())

	// No retry on later broadcasts.
	d.BroadcastPrice(&models.PriceSnapshot{Symbol: "bitcoin", Price: 51000})
	assert.Len(t, alive.messages(), 2)
	assert.Empty(t, dead.messages())
}

func TestDispatcher_AlertGoesToOwnerConnections(t *testing.T) {
	r := newTestRegistry()
	d := NewDispatcher(r, logger.Nop(), nopMetrics{}, nil)

	// Owner has two connections; neither subscribes to the symbol.
	owner1 := &fakeConn{}
	owner2 := &fakeConn{}
	other := &fakeConn{}
	subscribe(t, r, owner1, "user-1")
	subscribe(t, r, owner2, "user-1", "ethereum")
	subscribe(t, r, other, "user-2", "bitcoin")

	alert := &models.Alert{ID: "a1", UserID: "user-1", Symbol: "bitcoin", Condition: models.ConditionAbove, TargetPrice: 40000}
	snap := &models.PriceSnapshot{Symbol: "bitcoin", Price: 50000}
	d.NotifyAlertTriggered(context.Background(), alert, snap)

	assert.Len(t, owner1.messages(), 1)
	assert.Len(t, owner2.messages(), 1)
	assert.Empty(t, other.messages())

	var env models.Envelope
	require.NoError(t, json.Unmarshal(owner1.messages()[0], &env))
	assert.Equal(t, models.MsgAlertTriggered, env.Type)
}

func TestDispatcher_PublishesAlertEvent(t *testing.T) {
	r := newTestRegistry()
	pub := &fakePublisher{}
	d := NewDispatcher(r, logger.Nop(), nopMetrics{}, pub)

	alert := &models.Alert{ID: "a1", UserID: "user-1", Symbol: "bitcoin"}
	d.NotifyAlertTriggered(context.Background(), alert, &models.PriceSnapshot{Symbol: "bitcoin", Price: 1})

	assert.Equal(t, []string{"a1"}, pub.published)
}

func TestDispatcher_PublishFailureDoesNotBlockDelivery(t *testing.T) {
	r := newTestRegistry()
	pub := &fakePublisher{err: errors.New("brokers down")}
	d := NewDispatcher(r, logger.Nop(), nopMetrics{}, pub)

	fc := &fakeConn{}
	subscribe(t, r, fc, "user-1")

	alert := &models.Alert{ID: "a1", UserID: "user-1", Symbol: "bitcoin"}
	d.NotifyAlertTriggered(context.Background(), alert, &models.PriceSnapshot{Symbol: "bitcoin", Price: 1})

	assert.Len(t, fc.messages(), 1)
}
