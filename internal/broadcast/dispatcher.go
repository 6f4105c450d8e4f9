package broadcast

import (
	"context"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	"github.com/Zentex1337/crypto-tracker-api/internal/domain/repository"
	"github.com/Zentex1337/crypto-tracker-api/internal/subscription"
	"github.com/Zentex1337/crypto-tracker-api/pkg/logger"
)

// Dispatcher fans price updates out to interested connections and
// delivers triggered alerts to their owners. Price broadcasts are
// best-effort: a failed send deregisters the connection, never retries.
type Dispatcher struct {
	registry *subscription.Registry
	metrics  repository.Metrics
	logger   *logger.Logger
	events   repository.EventPublisher // optional, may be nil
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(reg *subscription.Registry, log *logger.Logger, m repository.Metrics, events repository.EventPublisher) *Dispatcher {
	return &Dispatcher{registry: reg, metrics: m, logger: log, events: events}
}

// BroadcastPrice delivers one price_update message to every connection
// currently subscribed to the snapshot's symbol. The interested set is
// snapshotted under the registry lock; delivery happens outside it.
func (d *Dispatcher) BroadcastPrice(snap *models.PriceSnapshot) {
	targets := d.registry.ConnectionsInterestedIn(snap.Symbol)
	if len(targets) == 0 {
		return
	}

	msg, err := models.NewPriceUpdate(snap)
	if err != nil {
		d.metrics.RecordError("marshal_price_update")
		d.logger.Error("marshal price update", logger.Error(err))
		return
	}

	for _, c := range targets {
		d.deliver(c, msg, models.MsgPriceUpdate)
	}
}

// NotifyAlertTriggered delivers an alert_triggered message to every
// connection of the alert's owner, whether or not the owner subscribes
// to the symbol's live stream.
func (d *Dispatcher) NotifyAlertTriggered(ctx context.Context, alert *models.Alert, snap *models.PriceSnapshot) {
	msg, err := models.NewAlertTriggered(alert)
	if err != nil {
		d.metrics.RecordError("marshal_alert_triggered")
		d.logger.Error("marshal alert notification", logger.Error(err))
		return
	}

	for _, c := range d.registry.ConnectionsOfUser(alert.UserID) {
		d.deliver(c, msg, models.MsgAlertTriggered)
	}

	d.metrics.RecordAlertTriggered(alert.Symbol)

	if d.events != nil {
		if err := d.events.PublishAlertTriggered(ctx, alert, snap); err != nil {
			// Event stream is downstream-only; never blocks client delivery.
			d.metrics.RecordError("publish_alert_event")
			d.logger.Warn("publish alert event",
				logger.String("alert_id", alert.ID),
				logger.Error(err),
			)
		}
	}
}

// deliver attempts one send; a dead connection is deregistered in place.
func (d *Dispatcher) deliver(c *subscription.Connection, msg []byte, kind string) {
	if err := c.Send(msg); err != nil {
		d.logger.Debug("send failed, dropping connection",
			logger.String("conn_id", c.ID()),
			logger.Error(err),
		)
		d.metrics.RecordError("send_" + kind)
		d.registry.Deregister(c)
		_ = c.Close("send failed")
		return
	}
	d.metrics.RecordMessageSent(kind)
}
