package artifacts

import (
	"context"
	"fmt"
)

// StoreType represents the type of artifact storage backend.
type StoreType string

const (
	StoreTypeFile StoreType = "file"
	StoreTypeS3   StoreType = "s3"
	StoreTypeGCS  StoreType = "gcs"
)

// Config selects and locates an artifact backend.
type Config struct {
	Type     StoreType
	Path     string // file
	Bucket   string // s3, gcs
	Region   string // s3
	Endpoint string // s3, optional (MinIO, LocalStack)
	Prefix   string // s3, gcs, optional
}

// NewStore creates the artifact store described by cfg. An empty type selects the filesystem.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", StoreTypeFile:
		path := cfg.Path
		if path == "" {
			path = "data/exports"
		}
		return NewFileStore(path)
	case StoreTypeS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("EXPORT_BUCKET is required for S3 storage")
		}
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.Bucket,
			Region:   region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
	case StoreTypeGCS:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("EXPORT_BUCKET is required for GCS storage")
		}
		return NewGCSStore(ctx, GCSStoreConfig{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	default:
		return nil, fmt.Errorf("unsupported artifact storage type: %s", cfg.Type)
	}
}
