package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/marinapark/booking-backend/internal/domain"
	"github.com/marinapark/booking-backend/internal/logger"
)

// Booking event types published to the events topic.
const (
	EventBookingConfirmed   = "booking.confirmed"
	EventBookingPendingSync = "booking.pending_sync"
	EventBookingReconciled  = "booking.reconciled"
	EventBookingRemoved     = "booking.removed"
)

// BookingEvent is the envelope for downstream consumers (email
// notifications, analytics).
type BookingEvent struct {
	Type          string `json:"type"`
	BookingID     string `json:"booking_id"`
	OwnerID       string `json:"owner_id,omitempty"`
	Kind          string `json:"kind"`
	UnitID        string `json:"unit_id"`
	CheckIn       string `json:"check_in"`
	CheckOut      string `json:"check_out"`
	TotalPrice    int64  `json:"total_price"`
	SyncStatus    string `json:"sync_status"`
	CorrelationID string `json:"correlation_id,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

// EventPublisher publishes booking lifecycle events.
type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, eventType string, order *domain.Order) error
	Close()
}

// KafkaEventPublisher publishes events to a Kafka/Redpanda topic.
type KafkaEventPublisher struct {
	client *kgo.Client
	topic  string
	log    *zap.Logger
}

// NewKafkaEventPublisher creates a publisher connected to the given brokers.
func NewKafkaEventPublisher(brokers []string, clientID, topic string) (*KafkaEventPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &KafkaEventPublisher{
		client: client,
		topic:  topic,
		log:    logger.Get(),
	}, nil
}

func (p *KafkaEventPublisher) PublishBookingEvent(ctx context.Context, eventType string, order *domain.Order) error {
	event := BookingEvent{
		Type:          eventType,
		BookingID:     order.ID,
		OwnerID:       order.OwnerID,
		Kind:          string(order.Kind),
		UnitID:        order.UnitID,
		CheckIn:       order.Range.Start.Format(domain.DayFormat),
		CheckOut:      order.Range.End.Format(domain.DayFormat),
		TotalPrice:    order.TotalPrice,
		SyncStatus:    string(order.SyncStatus),
		CorrelationID: order.CorrelationID,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339),
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(order.ID),
		Value: value,
	}

	// Fire and forget with a logged error; event delivery must never
	// block or fail a booking.
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.log.Error("failed to publish booking event",
				zap.String("type", eventType),
				zap.String("booking_id", order.ID),
				zap.Error(err))
		}
	})

	return nil
}

func (p *KafkaEventPublisher) Close() {
	p.client.Close()
}

// NoOpEventPublisher discards events. Used when Kafka is disabled.
type NoOpEventPublisher struct{}

func (NoOpEventPublisher) PublishBookingEvent(ctx context.Context, eventType string, order *domain.Order) error {
	return nil
}

func (NoOpEventPublisher) Close() {}
