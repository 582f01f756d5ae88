package uploader

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/bstardust/exif-geotag/internal/config"
	"github.com/bstardust/exif-geotag/internal/fshelper"
	"github.com/bstardust/exif-geotag/internal/logger"
	"github.com/bstardust/exif-geotag/pkg/s3client"
)

// Status describes what Upload did
type Status int

const (
	Uploaded Status = iota
	Skipped
	DryRun
)

func (s Status) String() string {
	switch s {
	case Skipped:
		return "skipped"
	case DryRun:
		return "dry-run"
	default:
		return "uploaded"
	}
}

// Uploader publishes tagged images to an object store
type Uploader struct {
	store  s3client.ObjectStore
	fs     *fshelper.Resolver
	config config.UploadConfig
	retry  RetryConfig
}

// New creates a new Uploader
func New(store s3client.ObjectStore, fs *fshelper.Resolver, cfg config.UploadConfig) *Uploader {
	if fs == nil {
		fs = fshelper.NewResolver("")
	}
	retry := DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	return &Uploader{
		store:  store,
		fs:     fs,
		config: cfg,
		retry:  retry,
	}
}

// WithRetryConfig replaces the retry policy
func (u *Uploader) WithRetryConfig(rc RetryConfig) *Uploader {
	u.retry = rc
	return u
}

// ObjectKey derives the object key for a local file
func ObjectKey(localPath string) string {
	return filepath.Base(localPath)
}

// Upload sends localPath to the store under objectKey. An empty objectKey
// uses the file's base name. meta is attached as user metadata.
func (u *Uploader) Upload(ctx context.Context, localPath, objectKey string, meta map[string]string) (Status, error) {
	if objectKey == "" {
		objectKey = ObjectKey(localPath)
	}
	fullKey := s3client.JoinKey(u.store.GetPrefix(), objectKey)

	if u.config.SkipExisting {
		exists, err := u.store.ObjectExists(ctx, objectKey)
		if err != nil {
			logger.Warn("Failed to check if %s exists: %s", fullKey, s3client.FormatError(err))
		} else if exists {
			logger.Info("Skipping %s, already present in bucket %s", fullKey, u.store.GetBucketName())
			return Skipped, nil
		}
	}

	f, err := u.fs.Open(localPath)
	if err != nil {
		return Uploaded, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Uploaded, fmt.Errorf("failed to get file size: %w", err)
	}
	size := info.Size()

	metadataMap := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		metadataMap[k] = v
	}
	metadataMap["original-filename"] = filepath.Base(localPath)

	contentType := s3client.DetectContentType(objectKey)
	if !s3client.IsImageFile(objectKey) {
		logger.Warn("Object key %s does not look like an image", objectKey)
	}

	if u.config.DryRun {
		logger.Info("DRY RUN: Would upload %s to %s/%s (%d bytes, %s) with %d metadata fields",
			localPath, u.store.GetBucketName(), fullKey, size, contentType, len(metadataMap))
		return DryRun, nil
	}

	err = RetryWithBackoff(ctx, "upload "+fullKey, func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to reset reader: %w", err)
		}
		return u.store.UploadFile(ctx, f, objectKey, size, metadataMap, contentType)
	}, u.retry)
	if err != nil {
		return Uploaded, err
	}

	logger.Info("Uploaded %s to %s/%s", localPath, u.store.GetBucketName(), fullKey)
	return Uploaded, nil
}
