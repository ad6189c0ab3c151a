package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/clinicbook/clinicbook/libs/kafkax"
)

// Emitter publishes notification events to Kafka, keyed by appointment id so
// all events for one appointment land on the same partition in order.
type Emitter struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewEmitter returns nil when no brokers are configured; callers treat a nil
// emitter as "events disabled" and skip publishing.
func NewEmitter(brokers string, logger *slog.Logger) *Emitter {
	bs := kafkax.SplitBrokers(brokers)
	if len(bs) == 0 {
		logger.Warn("event emitter disabled (no kafka brokers configured)")
		return nil
	}
	return &Emitter{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  bs,
			Topic:    NotificationsTopic,
			Balancer: &kafka.Hash{},
		}),
		logger: logger,
	}
}

func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	return e.writer.Close()
}

// Emit publishes one event. The event id is assigned here when empty.
func (e *Emitter) Emit(ctx context.Context, ev NotificationEvent) error {
	if e == nil {
		return nil
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.AppointmentID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.EventID)},
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s: %w", ev.Type, err)
	}
	e.logger.Info("event published", "event_id", ev.EventID, "type", ev.Type, "appointment_id", ev.AppointmentID)
	return nil
}
