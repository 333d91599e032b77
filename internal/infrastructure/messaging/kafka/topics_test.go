package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
)

type fakeConn struct {
	created    []kafka.TopicConfig
	createErr  error
	partitions map[string][]kafka.Partition
	closed     bool
}

func (c *fakeConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if c.createErr != nil {
		return c.createErr
	}
	c.created = append(c.created, topics...)
	return nil
}

func (c *fakeConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	var out []kafka.Partition
	for _, t := range topics {
		out = append(out, c.partitions[t]...)
	}
	return out, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := AlertPayload{RunID: "run-1", RegionID: "austin-east", Level: "major", Value: 12000, Limit: 5000}

	envelope, err := NewEventEnvelope("alert.raised", "test", payload)
	require.NoError(t, err)
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, "v1", envelope.SchemaVersion)

	var got AlertPayload
	require.NoError(t, envelope.DecodePayload(&got))
	assert.Equal(t, payload, got)
}

func TestDecodePayloadEmptyErrors(t *testing.T) {
	envelope := &EventEnvelope{}
	var got AlertPayload
	assert.Error(t, envelope.DecodePayload(&got))
}

func TestEnsureDefaultTopics(t *testing.T) {
	conn := &fakeConn{}
	mgr := NewTopicManagerWithConn(conn, logging.NewNopLogger())

	require.NoError(t, mgr.EnsureDefaultTopics(context.Background()))
	require.Len(t, conn.created, 2)
	assert.Equal(t, TopicRunCompleted, conn.created[0].Topic)
	assert.Equal(t, TopicAlerts, conn.created[1].Topic)
	require.NotEmpty(t, conn.created[0].ConfigEntries)
	assert.Equal(t, "retention.ms", conn.created[0].ConfigEntries[0].ConfigName)
}

func TestCreateTopicToleratesExisting(t *testing.T) {
	conn := &fakeConn{
		createErr:  assert.AnError,
		partitions: map[string][]kafka.Partition{TopicAlerts: {{Topic: TopicAlerts}}},
	}
	mgr := NewTopicManagerWithConn(conn, logging.NewNopLogger())

	err := mgr.CreateTopic(context.Background(), TopicConfig{Name: TopicAlerts, NumPartitions: 3, ReplicationFactor: 1})
	assert.NoError(t, err, "existing topic is not an error")
}

func TestCreateTopicValidation(t *testing.T) {
	mgr := NewTopicManagerWithConn(&fakeConn{}, logging.NewNopLogger())

	assert.Error(t, mgr.CreateTopic(context.Background(), TopicConfig{}))
	assert.Error(t, mgr.CreateTopic(context.Background(), TopicConfig{Name: "t", NumPartitions: 0, ReplicationFactor: 1}))
}

func TestTopicManagerClose(t *testing.T) {
	conn := &fakeConn{}
	mgr := NewTopicManagerWithConn(conn, logging.NewNopLogger())
	require.NoError(t, mgr.Close())
	assert.True(t, conn.closed)
}
