package repository

import (
	"context"
	"time"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
)

// PriceSource produces snapshot price records on demand. A failed fetch
// means "no update this cycle" for the caller, never a fatal condition.
type PriceSource interface {
	FetchAll(ctx context.Context) ([]*models.PriceSnapshot, error)
	// FetchOne returns models.ErrSymbolNotFound when the symbol is absent.
	FetchOne(ctx context.Context, symbol string) (*models.PriceSnapshot, error)
}

// AlertStore persists alert records. All owner-scoped operations return
// models.ErrAlertNotFound for alerts the owner cannot see.
type AlertStore interface {
	Create(ctx context.Context, alert *models.Alert) error
	ListByOwner(ctx context.Context, owner string) ([]*models.Alert, error)
	LoadActiveBySymbol(ctx context.Context, symbol string) ([]*models.Alert, error)
	// MarkTriggeredBatch transitions the given alerts active -> triggered
	// in one batch and returns the ids actually transitioned. Alerts
	// deactivated or deleted since evaluation are skipped, not errors.
	MarkTriggeredBatch(ctx context.Context, ids []string, at time.Time) ([]string, error)
	Deactivate(ctx context.Context, id, owner string) error
	Delete(ctx context.Context, id, owner string) error
	CountActive(ctx context.Context, owner string) (int, error)
}

// Conn is the per-connection transport handle the core sends through.
// Send must preserve FIFO order per connection; an error means the
// connection is dead and will not recover.
type Conn interface {
	Send(msg []byte) error
	Close(reason string) error
}

// EventPublisher emits triggered-alert events for downstream consumers.
type EventPublisher interface {
	PublishAlertTriggered(ctx context.Context, alert *models.Alert, snap *models.PriceSnapshot) error
	Close() error
}

// Metrics records operational measurements.
type Metrics interface {
	RecordConnections(n int)
	RecordMessageSent(kind string)
	RecordAlertTriggered(symbol string)
	RecordRateLimited(scope string)
	RecordCycleDuration(seconds float64)
	RecordLastPrice(symbol string, price float64)
	RecordError(kind string)
}
