package kafka

import (
	"context"

	"github.com/turtacn/TerraSight-Intelligence/internal/domain/run"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
)

const eventSource = "terrasight-monitor"

// RunPublisher adapts the Kafka producer to the run.Publisher contract.
type RunPublisher struct {
	producer *Producer
	log      logging.Logger
}

var _ run.Publisher = (*RunPublisher)(nil)

func NewRunPublisher(producer *Producer, log logging.Logger) *RunPublisher {
	return &RunPublisher{producer: producer, log: log.Named("publisher")}
}

// PublishRunCompleted emits one run summary keyed by run ID.
func (p *RunPublisher) PublishRunCompleted(ctx context.Context, artifact *run.Artifact) error {
	payload := RunCompletedPayload{
		RunID:           artifact.ID,
		Status:          string(artifact.Status),
		PeriodStart:     artifact.PeriodStart,
		PeriodEnd:       artifact.PeriodEnd,
		RegionsTotal:    len(artifact.Outcomes),
		RegionsAnalyzed: artifact.AnalyzedCount(),
		AlertCount:      len(artifact.Alerts),
		FinishedAt:      artifact.FinishedAt,
	}
	envelope, err := NewEventEnvelope("run.completed", eventSource, payload)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, TopicRunCompleted, artifact.ID, envelope)
}

// PublishAlerts emits one event per alert, keyed by region so consumers see
// a region's alerts in order.
func (p *RunPublisher) PublishAlerts(ctx context.Context, runID string, alerts []run.Alert) error {
	for _, alert := range alerts {
		payload := AlertPayload{
			RunID:    runID,
			RegionID: alert.RegionID,
			Level:    string(alert.Level),
			Message:  alert.Message,
			Value:    alert.Value,
			Limit:    alert.Limit,
		}
		envelope, err := NewEventEnvelope("alert.raised", eventSource, payload)
		if err != nil {
			return err
		}
		if err := p.producer.Publish(ctx, TopicAlerts, alert.RegionID, envelope); err != nil {
			return err
		}
	}
	return nil
}
