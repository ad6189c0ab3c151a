package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinicbook/clinicbook/libs/kafkax"
	"github.com/clinicbook/clinicbook/services/notification-service/internal/delivery"
)

type Config struct {
	Brokers     string
	GroupID     string
	Topic       string
	DLQTopic    string
	MaxAttempts int
	Backoff     time.Duration
}

// Consumer reads notification events and drives them through the delivery
// worker. Retryable failures are reattempted in place with backoff; an
// event that exhausts its attempts goes to the dead letter topic so the
// partition keeps moving.
type Consumer struct {
	reader      *kafka.Reader
	dlq         *kafka.Writer
	worker      *delivery.Worker
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
}

func New(logger *slog.Logger, worker *delivery.Worker, cfg Config) *Consumer {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	var dlq *kafka.Writer
	if cfg.DLQTopic != "" {
		dlq = kafka.NewWriter(kafka.WriterConfig{
			Brokers:  brokers,
			Topic:    cfg.DLQTopic,
			Balancer: &kafka.Hash{},
		})
	}
	return &Consumer{
		reader:      reader,
		dlq:         dlq,
		worker:      worker,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()
	if c.dlq != nil {
		defer c.dlq.Close()
	}

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)

	var ev delivery.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.logger.Error("invalid event payload", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		c.deadLetter(ctxSpan, msg, "invalid payload")
		return
	}
	if ev.EventID == "" {
		ev.EventID = meta.EventID
	}

	for attempt := 1; ; attempt++ {
		err := c.worker.Handle(ctxSpan, ev)
		if err == nil {
			return
		}
		if !errors.Is(err, delivery.ErrRetryable) || attempt >= c.maxAttempts {
			c.logger.Error("delivery abandoned", "event_id", ev.EventID, "attempt", attempt, "err", err)
			span.RecordError(err)
			c.deadLetter(ctxSpan, msg, err.Error())
			return
		}
		c.logger.Warn("delivery attempt failed", "event_id", ev.EventID, "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff):
		}
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, reason string) {
	if c.dlq == nil {
		return
	}
	out := kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: append(msg.Headers, kafka.Header{Key: "dlq_reason", Value: []byte(reason)}),
	}
	out.Headers = kafkax.InjectTraceHeaders(ctx, out.Headers)
	if err := c.dlq.WriteMessages(ctx, out); err != nil {
		c.logger.Error("dead letter publish failed", "err", err)
	}
}
