package s3client

import (
	"context"
	"io"
)

// ObjectStore defines the operations the publisher needs from a bucket
type ObjectStore interface {
	UploadFile(ctx context.Context, reader io.Reader, objectKey string, size int64, metadata map[string]string, contentType string) error
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
	GetBucketName() string
	GetPrefix() string
}
