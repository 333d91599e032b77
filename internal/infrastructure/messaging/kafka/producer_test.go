package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TerraSight-Intelligence/internal/config"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
)

type fakeWriter struct {
	messages []kafka.Message
	writeErr error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestProducer() (*Producer, *fakeWriter) {
	writer := &fakeWriter{}
	return NewProducerWithWriter(writer, logging.NewNopLogger()), writer
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{}, logging.NewNopLogger())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.GetCode(err))
}

func TestPublishWritesKeyedMessage(t *testing.T) {
	producer, writer := newTestProducer()

	envelope, err := NewEventEnvelope("run.completed", "test", RunCompletedPayload{RunID: "run-1"})
	require.NoError(t, err)

	require.NoError(t, producer.Publish(context.Background(), TopicRunCompleted, "run-1", envelope))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, TopicRunCompleted, msg.Topic)
	assert.Equal(t, []byte("run-1"), msg.Key)
	assert.NotEmpty(t, msg.Value)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "run.completed", headers["event_type"])
	assert.Equal(t, "v1", headers["schema_version"])

	sent, failed, bytes := producer.Metrics()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(0), failed)
	assert.Greater(t, bytes, int64(0))
}

func TestPublishRejectsMissingTopic(t *testing.T) {
	producer, _ := newTestProducer()
	envelope, _ := NewEventEnvelope("x", "test", struct{}{})

	err := producer.Publish(context.Background(), "", "k", envelope)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.GetCode(err))
}

func TestPublishCountsFailures(t *testing.T) {
	producer, writer := newTestProducer()
	writer.writeErr = assert.AnError

	envelope, _ := NewEventEnvelope("x", "test", struct{}{})
	err := producer.Publish(context.Background(), TopicAlerts, "k", envelope)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAlertPublishFailed, errors.GetCode(err))

	_, failed, _ := producer.Metrics()
	assert.Equal(t, int64(1), failed)
}

func TestPublishAfterCloseFails(t *testing.T) {
	producer, writer := newTestProducer()

	require.NoError(t, producer.Close())
	require.NoError(t, producer.Close(), "second close is a no-op")
	assert.True(t, writer.closed)

	envelope, _ := NewEventEnvelope("x", "test", struct{}{})
	err := producer.Publish(context.Background(), TopicAlerts, "k", envelope)
	assert.Equal(t, ErrProducerClosed, err)
}
