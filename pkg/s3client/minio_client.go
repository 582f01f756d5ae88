package s3client

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/bstardust/exif-geotag/internal/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config represents the configuration for an S3 client
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// Validate checks the fields required to connect
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("S3 endpoint is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("S3 bucket name is required")
	}
	if err := ValidateBucketName(c.Bucket); err != nil {
		return err
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("S3 access key and secret key are required")
	}
	return nil
}

// ValidateBucketName checks a bucket name against S3 naming rules
func ValidateBucketName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return fmt.Errorf("%w: %q must be between 3 and 63 characters", ErrInvalidBucketName, name)
	}
	for i, char := range name {
		alnum := (char >= 'a' && char <= 'z') || (char >= '0' && char <= '9')
		if i == 0 || i == len(name)-1 {
			if !alnum {
				return fmt.Errorf("%w: %q must start and end with a letter or digit", ErrInvalidBucketName, name)
			}
			continue
		}
		if !alnum && char != '-' && char != '.' {
			return fmt.Errorf("%w: %q must be DNS compliant", ErrInvalidBucketName, name)
		}
	}
	return nil
}

// MinioClient represents an S3 client using the MinIO SDK
type MinioClient struct {
	client *minio.Client
	config Config
}

var _ ObjectStore = (*MinioClient)(nil)

// NewMinIO creates a new MinIO S3 client and checks that the bucket exists
func NewMinIO(ctx context.Context, cfg Config) (*MinioClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Remove protocol prefix if present
	endpoint := strings.TrimPrefix(cfg.Endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s: %w", cfg.Bucket, ErrBucketNotFound)
	}

	logger.Info("Connected to S3 endpoint %s, bucket %s", endpoint, cfg.Bucket)

	return &MinioClient{
		client: client,
		config: cfg,
	}, nil
}

// UploadFile uploads a file to S3
func (c *MinioClient) UploadFile(ctx context.Context, reader io.Reader, objectKey string, size int64, metadata map[string]string, contentType string) error {
	objectKey = c.objectKey(objectKey)

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := c.client.PutObject(ctx, c.config.Bucket, objectKey, reader, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	logger.Debug("Uploaded file to %s (%d bytes, etag: %s)", objectKey, info.Size, info.ETag)
	return nil
}

// ObjectExists checks if an object exists in the bucket
func (c *MinioClient) ObjectExists(ctx context.Context, objectKey string) (bool, error) {
	objectKey = c.objectKey(objectKey)

	_, err := c.client.StatObject(ctx, c.config.Bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		if IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check if object exists: %w", err)
	}
	return true, nil
}

// DeleteObject deletes an object from the bucket
func (c *MinioClient) DeleteObject(ctx context.Context, objectKey string) error {
	objectKey = c.objectKey(objectKey)

	err := c.client.RemoveObject(ctx, c.config.Bucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	logger.Debug("Deleted object %s", objectKey)
	return nil
}

// objectKey returns the full object key with prefix
func (c *MinioClient) objectKey(key string) string {
	return JoinKey(c.config.Prefix, key)
}

// JoinKey joins prefix and key with a single slash
func JoinKey(prefix, key string) string {
	key = strings.TrimPrefix(key, "/")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

// GetBucketName returns the bucket name
func (c *MinioClient) GetBucketName() string {
	return c.config.Bucket
}

// GetEndpoint returns the endpoint
func (c *MinioClient) GetEndpoint() string {
	return c.config.Endpoint
}

// GetPrefix returns the prefix
func (c *MinioClient) GetPrefix() string {
	return c.config.Prefix
}
