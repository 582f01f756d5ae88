package uploader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/bstardust/exif-geotag/internal/logger"
	"github.com/bstardust/exif-geotag/pkg/s3client"
)

// RetryConfig defines retry behavior for uploads that might fail transiently
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	// Jitter is the fraction by which each backoff is randomly widened or shortened
	Jitter float64
	// RetryableCodes lists S3 error codes worth another attempt
	RetryableCodes []string
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     5,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
		BackoffFactor:  2.0,
		Jitter:         0.2,
		RetryableCodes: []string{
			"RequestTimeout",
			"RequestTimeTooSkewed",
			"InternalError",
			"SlowDown",
			"OperationAborted",
			"ServiceUnavailable",
			"RequestLimitExceeded",
			"BandwidthLimitExceeded",
		},
	}
}

var transientPatterns = []string{"timeout", "connection", "reset", "broken pipe", "network", "unavailable"}

// IsRetryable reports whether err looks transient. Cancellation, auth and
// not-found failures are final.
func (rc RetryConfig) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if s3client.IsAuthError(err) || s3client.IsNotFoundError(err) {
		return false
	}

	msg := err.Error()
	for _, code := range rc.RetryableCodes {
		if strings.Contains(msg, code) {
			return true
		}
	}

	lower := strings.ToLower(msg)
	for _, p := range transientPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// RetryWithBackoff runs fn until it succeeds, fails permanently, runs out
// of retries or ctx is done
func RetryWithBackoff(ctx context.Context, operation string, fn func() error, config RetryConfig) error {
	var err error
	attempts := 0

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%s canceled: %w", operation, ctx.Err())
		}
		if attempt > 0 {
			logger.Debug("Retry attempt %d/%d for %s", attempt, config.MaxRetries, operation)
		}

		attempts++
		if err = fn(); err == nil {
			if attempt > 0 {
				logger.Info("Completed %s after %d retries", operation, attempt)
			}
			return nil
		}

		if !config.IsRetryable(err) {
			logger.Warn("Non-retryable error for %s: %s", operation, s3client.FormatError(err))
			return err
		}
		if attempt == config.MaxRetries {
			break
		}

		backoff := backoffDuration(attempt, config)
		logger.Debug("Backing off for %v before retrying %s: %v", backoff, operation, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("%s canceled during retry: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, err)
}

// backoffDuration grows exponentially per attempt, with jitter, capped at MaxBackoff
func backoffDuration(attempt int, config RetryConfig) time.Duration {
	backoff := float64(config.InitialBackoff) * math.Pow(config.BackoffFactor, float64(attempt))

	if config.Jitter > 0 {
		backoff *= 1 + (rand.Float64()*2-1)*config.Jitter
	}
	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}
	return time.Duration(backoff)
}
