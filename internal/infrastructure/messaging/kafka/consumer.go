package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/TerraSight-Intelligence/internal/config"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
)

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// AlertHandler processes one decoded alert event.
type AlertHandler func(ctx context.Context, envelope *EventEnvelope, alert AlertPayload) error

// AlertConsumer tails the alert topic for the CLI and notification sinks.
type AlertConsumer struct {
	reader ReaderInterface
	log    logging.Logger
}

// NewAlertConsumer joins the configured consumer group on the alert topic.
func NewAlertConsumer(cfg config.KafkaConfig, log logging.Logger) (*AlertConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   TopicAlerts,
	})
	return NewAlertConsumerWithReader(reader, log), nil
}

// NewAlertConsumerWithReader wraps an existing reader. Used by tests.
func NewAlertConsumerWithReader(reader ReaderInterface, log logging.Logger) *AlertConsumer {
	return &AlertConsumer{reader: reader, log: log.Named("alerts")}
}

// Consume reads alert events until ctx is cancelled or handler errors.
// Malformed messages are logged and skipped.
func (c *AlertConsumer) Consume(ctx context.Context, handler AlertHandler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, errors.ErrCodeExternalService, "alert read failed")
		}

		var envelope EventEnvelope
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			c.log.Warn("Skipping malformed alert event",
				logging.Int64("offset", msg.Offset), logging.Err(err))
			continue
		}
		var alert AlertPayload
		if err := envelope.DecodePayload(&alert); err != nil {
			c.log.Warn("Skipping alert with undecodable payload",
				logging.String("event_id", envelope.EventID), logging.Err(err))
			continue
		}

		if err := handler(ctx, &envelope, alert); err != nil {
			return err
		}
	}
}

func (c *AlertConsumer) Close() error {
	return c.reader.Close()
}
