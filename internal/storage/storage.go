package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"
)

const (
	// Download timeout per attempt; long-form WAV files run to hundreds of MB
	downloadTimeout = 10 * time.Minute

	deleteTimeout = 30 * time.Second

	// Retry configuration
	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// GCS is the object storage gateway for synthesized audio.
type GCS struct {
	Bucket string
	svc    *gcs.Service
	logger *zap.Logger

	backoff func(attempt int) time.Duration
}

// New builds a gateway for bucket. opts are passed to the storage client,
// e.g. option.WithTokenSource or option.WithEndpoint.
func New(ctx context.Context, bucket string, logger *zap.Logger, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}

	svc, err := gcs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &GCS{
		Bucket:  bucket,
		svc:     svc,
		logger:  logger,
		backoff: retryDelay,
	}, nil
}

// URI returns the gs:// location of objectName.
func (s *GCS) URI(objectName string) string {
	return fmt.Sprintf("gs://%s/%s", s.Bucket, objectName)
}

// Download streams objectName to localPath with retries and exponential backoff.
// The file is written to a temporary sibling and renamed, so localPath never
// holds a partial object.
func (s *GCS) Download(ctx context.Context, objectName, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", localPath, err)
	}

	return s.withRetry(ctx, "download", objectName, func(ctx context.Context) error {
		dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
		defer cancel()

		resp, err := s.svc.Objects.Get(s.Bucket, objectName).Context(dlCtx).Download()
		if err != nil {
			return fmt.Errorf("failed to download %s: %w", s.URI(objectName), err)
		}
		defer resp.Body.Close()

		return writeAtomically(localPath, resp.Body)
	})
}

// Delete removes objectName. A missing object is not an error.
func (s *GCS) Delete(ctx context.Context, objectName string) error {
	return s.withRetry(ctx, "delete", objectName, func(ctx context.Context) error {
		delCtx, cancel := context.WithTimeout(ctx, deleteTimeout)
		defer cancel()

		err := s.svc.Objects.Delete(s.Bucket, objectName).Context(delCtx).Do()
		if err != nil {
			if statusOf(err) == http.StatusNotFound {
				return nil
			}
			return fmt.Errorf("failed to delete %s: %w", s.URI(objectName), err)
		}
		return nil
	})
}

func (s *GCS) withRetry(ctx context.Context, op, objectName string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.backoff(attempt)
			s.logger.Info("retrying storage call",
				zap.String("op", op),
				zap.String("object", objectName),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled: %w", op, ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 0 {
				s.logger.Info("storage call succeeded after retry",
					zap.String("op", op),
					zap.String("object", objectName),
					zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if ctx.Err() != nil || !isRetryable(lastErr) {
			return lastErr
		}

		s.logger.Warn("storage call failed (retryable)",
			zap.String("op", op),
			zap.String("object", objectName),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, maxRetries+1, lastErr)
}

func writeAtomically(localPath string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(localPath), "."+filepath.Base(localPath)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}

	return os.Rename(tmp.Name(), localPath)
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	// Add 0–25% jitter to avoid thundering herd
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

func statusOf(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

func isRetryable(err error) bool {
	if code := statusOf(err); code != 0 {
		return isRetryableStatus(code)
	}
	return isRetryableError(err)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusInternalServerError || // 500
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}
