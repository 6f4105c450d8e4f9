package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	domainrepo "github.com/Zentex1337/crypto-tracker-api/internal/domain/repository"
	pkgkafka "github.com/Zentex1337/crypto-tracker-api/pkg/kafka"
)

// alertTriggeredEvent is the wire shape published to Kafka when an
// alert fires.
type alertTriggeredEvent struct {
	AlertID     string    `json:"alert_id"`
	UserID      string    `json:"user_id"`
	Symbol      string    `json:"symbol"`
	Condition   string    `json:"condition"`
	Price       float64   `json:"price"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// KafkaEventPublisher publishes triggered-alert events to a Kafka topic,
// keyed by symbol for per-symbol ordering.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaEventPublisher creates a Kafka-backed event publisher.
func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) domainrepo.EventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishAlertTriggered(ctx context.Context, alert *models.Alert, snap *models.PriceSnapshot) error {
	ev := alertTriggeredEvent{
		AlertID:   alert.ID,
		UserID:    alert.UserID,
		Symbol:    alert.Symbol,
		Condition: string(alert.Condition),
		Price:     snap.Price,
	}
	if alert.TriggeredAt != nil {
		ev.TriggeredAt = *alert.TriggeredAt
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}
	return p.producer.Publish(ctx, p.topic, []byte(alert.Symbol), b)
}

func (p *KafkaEventPublisher) Close() error {
	return p.producer.Close()
}
