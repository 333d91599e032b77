package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/TerraSight-Intelligence/internal/config"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
)

// ErrProducerClosed is returned by Publish after Close.
var ErrProducerClosed = errors.New(errors.ErrCodeAlertPublishFailed, "producer closed")

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerMetrics counts publish outcomes.
type ProducerMetrics struct {
	MessagesSent   atomic.Int64
	MessagesFailed atomic.Int64
	BytesSent      atomic.Int64
}

// Producer writes envelopes to Kafka topics keyed by run or region ID, so
// events for one entity land on the same partition in order.
type Producer struct {
	writer  WriterInterface
	log     logging.Logger
	closed  atomic.Bool
	metrics *ProducerMetrics
}

// NewProducer builds a hash-balanced producer from the platform config.
func NewProducer(cfg config.KafkaConfig, log logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}

	retries := cfg.ProducerRetries
	if retries <= 0 {
		retries = 3
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  retries + 1,
		BatchSize:    batchSize,
		BatchTimeout: time.Second,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
	}

	return NewProducerWithWriter(writer, log), nil
}

// NewProducerWithWriter wraps an existing writer. Used by tests.
func NewProducerWithWriter(writer WriterInterface, log logging.Logger) *Producer {
	return &Producer{
		writer:  writer,
		log:     log.Named("kafka"),
		metrics: &ProducerMetrics{},
	}
}

// Publish writes one envelope to topic, keyed for partition affinity.
func (p *Producer) Publish(ctx context.Context, topic string, key string, envelope *EventEnvelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if topic == "" {
		return errors.New(errors.ErrCodeValidation, "topic required")
	}

	value, err := marshalEnvelope(envelope)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  envelope.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(envelope.EventType)},
			{Key: "schema_version", Value: []byte(envelope.SchemaVersion)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.MessagesFailed.Add(1)
		return errors.Wrap(err, errors.ErrCodeAlertPublishFailed, "publish failed")
	}

	p.metrics.MessagesSent.Add(1)
	p.metrics.BytesSent.Add(int64(len(value)))
	p.log.Debug("Message published",
		logging.String("topic", topic),
		logging.String("event_type", envelope.EventType))
	return nil
}

// Metrics returns a snapshot of the publish counters.
func (p *Producer) Metrics() (sent, failed, bytes int64) {
	return p.metrics.MessagesSent.Load(),
		p.metrics.MessagesFailed.Load(),
		p.metrics.BytesSent.Load()
}

func marshalEnvelope(e *EventEnvelope) ([]byte, error) {
	if e == nil {
		return nil, errors.New(errors.ErrCodeValidation, "envelope required")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return data, nil
}

// Close flushes and shuts the writer down. Idempotent.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.log.Info("Kafka producer closed",
		logging.Int64("sent", p.metrics.MessagesSent.Load()))
	return err
}
