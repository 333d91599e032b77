// Package minio archives serialized run artifacts in S3-compatible object
// storage for reporting consumers that read files rather than database rows.
package minio

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/TerraSight-Intelligence/internal/config"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
)

// MinIOAPI is the subset of the minio-go client the platform uses.
type MinIOAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

// Client wraps the MinIO SDK with bucket bootstrap and health checks.
type Client struct {
	api    MinIOAPI
	bucket string
	expiry time.Duration
	log    logging.Logger
}

// NewClient connects to the configured endpoint and ensures the artifact
// bucket exists.
func NewClient(cfg config.MinIOConfig, log logging.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeValidation, "minio endpoint required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrCodeValidation, "minio bucket required")
	}

	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactStoreError, "failed to create minio client")
	}

	client := NewClientWithAPI(api, cfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	log.Info("MinIO client connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket))
	return client, nil
}

// NewClientWithAPI wraps an existing API implementation. Used by tests.
func NewClientWithAPI(api MinIOAPI, cfg config.MinIOConfig, log logging.Logger) *Client {
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &Client{api: api, bucket: cfg.Bucket, expiry: expiry, log: log.Named("minio")}
}

// Bucket reports the artifact bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// EnsureBucket creates the artifact bucket if it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeArtifactStoreError, "failed to check bucket existence")
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeArtifactStoreError, "failed to create bucket")
	}
	c.log.Info("Created bucket", logging.String("bucket", c.bucket))
	return nil
}

// HealthCheck verifies the endpoint answers and the bucket exists.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.api.ListBuckets(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeArtifactStoreError, "minio unreachable")
	}
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeArtifactStoreError, "bucket check failed")
	}
	if !exists {
		return errors.New(errors.ErrCodeArtifactStoreError, "artifact bucket missing")
	}
	return nil
}

// PresignedGetURL returns a time-limited download link for an object.
func (c *Client) PresignedGetURL(ctx context.Context, objectName string) (string, error) {
	u, err := c.api.PresignedGetObject(ctx, c.bucket, objectName, c.expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArtifactStoreError, "failed to presign object")
	}
	return u.String(), nil
}
