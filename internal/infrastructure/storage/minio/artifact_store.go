package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/TerraSight-Intelligence/internal/domain/run"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
)

// ArtifactStore persists run artifacts as JSON objects, keyed by start date
// so reporting jobs can list a month's runs with one prefix scan.
type ArtifactStore struct {
	client *Client
	log    logging.Logger
}

var _ run.ArtifactStore = (*ArtifactStore)(nil)

func NewArtifactStore(client *Client, log logging.Logger) *ArtifactStore {
	return &ArtifactStore{client: client, log: log.Named("artifact_store")}
}

// ObjectName maps an artifact to its storage key.
func ObjectName(artifact *run.Artifact) string {
	return fmt.Sprintf("runs/%s/%s.json", artifact.StartedAt.UTC().Format("2006/01"), artifact.ID)
}

// PutArtifact uploads the serialized artifact and returns its location as
// bucket/key.
func (s *ArtifactStore) PutArtifact(ctx context.Context, artifact *run.Artifact) (string, error) {
	if artifact == nil || artifact.ID == "" {
		return "", errors.InvalidParam("artifact with ID required")
	}

	data, err := json.Marshal(artifact)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal artifact")
	}

	objectName := ObjectName(artifact)
	_, err = s.client.api.PutObject(ctx, s.client.bucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArtifactStoreError, "failed to upload artifact")
	}

	location := s.client.bucket + "/" + objectName
	s.log.Info("Run artifact archived",
		logging.String("run_id", artifact.ID),
		logging.String("location", location),
		logging.Int("bytes", len(data)))
	return location, nil
}
