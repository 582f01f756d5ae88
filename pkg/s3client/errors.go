package s3client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
)

// Common errors
var (
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrObjectNotFound     = errors.New("object not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidBucketName  = errors.New("invalid bucket name")
)

var (
	notFoundCodes = map[string]bool{"NoSuchBucket": true, "NoSuchKey": true, "NotFound": true}
	authCodes     = map[string]bool{
		"AccessDenied":                 true,
		"InvalidAccessKeyId":           true,
		"SignatureDoesNotMatch":        true,
		"AuthorizationHeaderMalformed": true,
	}
)

// errorCode returns the S3 error code carried by err, or ""
func errorCode(err error) string {
	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		return minioErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error is a "not found" error
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBucketNotFound) || errors.Is(err, ErrObjectNotFound) {
		return true
	}
	return notFoundCodes[errorCode(err)]
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidCredentials) || authCodes[errorCode(err)] {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "access denied") ||
		strings.Contains(errStr, "invalid credential") ||
		strings.Contains(errStr, "signature does not match")
}

// FormatError formats an error for display
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		return fmt.Sprintf("S3 error: %s (code: %s)", minioErr.Message, minioErr.Code)
	}
	return err.Error()
}
