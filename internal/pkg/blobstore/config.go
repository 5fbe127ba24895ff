package blobstore

import (
	"errors"

	"github.com/clearaudio/gateway/internal/pkg/env"
)

const (
	BackendS3    = "s3"
	BackendLocal = "local"
)

// Config holds blob storage configuration
type Config struct {
	Backend         string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	PublicBaseURL   string // Prefix for returned object URLs
	LocalDir        string
	CreateBucket    bool
}

// LoadConfig loads blob storage configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Backend:         env.GetEnv("BLOB_BACKEND", BackendLocal),
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		PublicBaseURL:   env.GetEnv("BLOB_PUBLIC_BASE_URL", ""),
		LocalDir:        env.GetEnv("BLOB_LOCAL_DIR", "./blobs"),
		CreateBucket:    env.IsDev(),
	}

	if cfg.Backend == BackendS3 {
		if cfg.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required for the s3 blob backend")
		}
		if cfg.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required for the s3 blob backend")
		}
		if cfg.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required for the s3 blob backend")
		}
	}
	return cfg, nil
}
