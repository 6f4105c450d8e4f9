package subscription

import (
	"sync"
	"time"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	"github.com/Zentex1337/crypto-tracker-api/internal/domain/repository"
	"github.com/Zentex1337/crypto-tracker-api/pkg/logger"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Connection is the registry's bookkeeping record for one live client.
// The transport owns the socket; the registry owns everything else.
// Mutable fields are guarded by the owning Registry's mutex.
type Connection struct {
	id         string
	userID     string
	remoteAddr string
	conn       repository.Conn
	symbols    map[string]struct{}
	lastActive time.Time
}

// ID returns the connection's registry handle.
func (c *Connection) ID() string { return c.id }

// UserID returns the resolved identity, empty for anonymous connections.
func (c *Connection) UserID() string { return c.userID }

// RemoteAddr returns the client network origin.
func (c *Connection) RemoteAddr() string { return c.remoteAddr }

// Send writes a message through the underlying transport.
func (c *Connection) Send(msg []byte) error { return c.conn.Send(msg) }

// Close tears down the underlying transport.
func (c *Connection) Close(reason string) error { return c.conn.Close(reason) }

// Registry tracks connections, their subscribed symbol sets, and the
// reverse index symbol -> interested connections. One mutex guards both
// structures so no reader ever observes them out of step.
type Registry struct {
	mu       sync.RWMutex
	clock    clockwork.Clock
	logger   *logger.Logger
	metrics  repository.Metrics
	maxConns int

	supported map[string]struct{}
	conns     map[string]*Connection
	bySymbol  map[string]map[string]*Connection
	byUser    map[string]map[string]*Connection
	draining  bool
}

// NewRegistry creates a registry for the given supported symbol set.
func NewRegistry(maxConns int, supported []string, clock clockwork.Clock, log *logger.Logger, m repository.Metrics) *Registry {
	sup := make(map[string]struct{}, len(supported))
	for _, s := range supported {
		sup[s] = struct{}{}
	}
	return &Registry{
		clock:     clock,
		logger:    log,
		metrics:   m,
		maxConns:  maxConns,
		supported: sup,
		conns:     make(map[string]*Connection),
		bySymbol:  make(map[string]map[string]*Connection),
		byUser:    make(map[string]map[string]*Connection),
	}
}

// Register admits a new connection with an empty interest set. It fails
// with models.ErrCapacityExceeded once the global cap is reached, and
// with models.ErrDraining during shutdown.
func (r *Registry) Register(conn repository.Conn, userID, remoteAddr string) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.draining {
		return nil, models.ErrDraining
	}
	if len(r.conns) >= r.maxConns {
		return nil, models.ErrCapacityExceeded
	}

	c := &Connection{
		id:         uuid.NewString(),
		userID:     userID,
		remoteAddr: remoteAddr,
		conn:       conn,
		symbols:    make(map[string]struct{}),
		lastActive: r.clock.Now(),
	}
	r.conns[c.id] = c
	if userID != "" {
		if r.byUser[userID] == nil {
			r.byUser[userID] = make(map[string]*Connection)
		}
		r.byUser[userID][c.id] = c
	}

	r.metrics.RecordConnections(len(r.conns))
	r.logger.Debug("connection registered",
		logger.String("conn_id", c.id),
		logger.String("user_id", userID),
		logger.Int("total", len(r.conns)),
	)
	return c, nil
}

// Subscribe adds the supported symbols to the connection's interest set
// and reports unsupported ones back as a partial-failure list. Accepted
// holds every requested supported symbol, including ones the connection
// already held, so the caller can ack the full set.
func (r *Registry) Subscribe(c *Connection, symbols []string) (accepted, rejected []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[c.id] != c {
		return nil, nil, models.ErrUnknownConnection
	}

	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}

		if _, ok := r.supported[s]; !ok {
			rejected = append(rejected, s)
			continue
		}
		accepted = append(accepted, s)
		if _, ok := c.symbols[s]; ok {
			continue
		}
		c.symbols[s] = struct{}{}
		if r.bySymbol[s] == nil {
			r.bySymbol[s] = make(map[string]*Connection)
		}
		r.bySymbol[s][c.id] = c
	}

	c.lastActive = r.clock.Now()
	return accepted, rejected, nil
}

// Unsubscribe removes symbols from the connection's interest set,
// silently ignoring symbols it is not subscribed to.
func (r *Registry) Unsubscribe(c *Connection, symbols []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[c.id] != c {
		return nil, models.ErrUnknownConnection
	}

	var removed []string
	for _, s := range symbols {
		if _, ok := c.symbols[s]; !ok {
			continue
		}
		delete(c.symbols, s)
		r.dropFromSymbol(s, c.id)
		removed = append(removed, s)
	}

	c.lastActive = r.clock.Now()
	return removed, nil
}

// Deregister removes the connection from every symbol's interest set and
// drops its record. Safe to call more than once; returns false when the
// connection was already gone.
func (r *Registry) Deregister(c *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[c.id] != c {
		return false
	}

	for s := range c.symbols {
		r.dropFromSymbol(s, c.id)
	}
	c.symbols = make(map[string]struct{})
	delete(r.conns, c.id)
	if c.userID != "" {
		if set := r.byUser[c.userID]; set != nil {
			delete(set, c.id)
			if len(set) == 0 {
				delete(r.byUser, c.userID)
			}
		}
	}

	r.metrics.RecordConnections(len(r.conns))
	r.logger.Debug("connection deregistered",
		logger.String("conn_id", c.id),
		logger.Int("total", len(r.conns)),
	)
	return true
}

// ConnectionsInterestedIn returns a snapshot of the connections currently
// subscribed to symbol. Delivery happens outside the registry lock.
func (r *Registry) ConnectionsInterestedIn(symbol string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.bySymbol[symbol]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// ConnectionsOfUser returns a snapshot of the connections authenticated
// as userID, independent of their symbol subscriptions.
func (r *Registry) ConnectionsOfUser(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// StaleConnections returns connections idle for longer than maxAge.
func (r *Registry) StaleConnections(maxAge time.Duration) []*Connection {
	cutoff := r.clock.Now().Add(-maxAge)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Connection
	for _, c := range r.conns {
		if c.lastActive.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out
}

// Touch updates the connection's last-activity timestamp (heartbeats).
func (r *Registry) Touch(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[c.id] == c {
		c.lastActive = r.clock.Now()
	}
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Supported reports whether symbol is in the supported set.
func (r *Registry) Supported(symbol string) bool {
	_, ok := r.supported[symbol]
	return ok
}

// Drain rejects further registrations and closes every connection.
func (r *Registry) Drain() {
	r.mu.Lock()
	r.draining = true
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]*Connection)
	r.bySymbol = make(map[string]map[string]*Connection)
	r.byUser = make(map[string]map[string]*Connection)
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.Close("server shutting down")
	}
	r.metrics.RecordConnections(0)
}

// dropFromSymbol removes one connection from a symbol's interest set.
// Caller holds r.mu.
func (r *Registry) dropFromSymbol(symbol, connID string) {
	set := r.bySymbol[symbol]
	if set == nil {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.bySymbol, symbol)
	}
}
