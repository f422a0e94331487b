package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinels for errors.Is. Each typed error below matches exactly one.
var (
	ErrAuthentication = errors.New("authentication to google failed")
	ErrInitialization = errors.New("failed to initialize tts")
	ErrProcessing     = errors.New("tts failed unexpectedly")
	ErrTimeout        = errors.New("tts timed out")
	ErrRetrieval      = errors.New("failed to retrieve synthesized audio")
)

// ProviderError is the error payload returned by the TTS provider. Details
// holds the typed google.rpc detail objects verbatim.
type ProviderError struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Status  string            `json:"status,omitempty"`
	Details []json.RawMessage `json:"details,omitempty"`
}

func (e *ProviderError) Error() string {
	var parts []string
	if e.Code != 0 {
		parts = append(parts, fmt.Sprintf("code %d", e.Code))
	}
	if e.Status != "" {
		parts = append(parts, e.Status)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if len(parts) == 0 {
		return "provider returned an empty error"
	}
	return strings.Join(parts, ": ")
}

// AuthenticationError means no usable bearer token could be obtained.
// Err is nil when the provider returned an empty token without failing.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", ErrAuthentication, e.Err)
	}
	return fmt.Sprintf("%s: empty access token", ErrAuthentication)
}

func (e *AuthenticationError) Unwrap() error        { return e.Err }
func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthentication }

// InitializationError means the submission was rejected.
type InitializationError struct {
	Cause error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrInitialization, e.Cause)
}

func (e *InitializationError) Unwrap() error        { return e.Cause }
func (e *InitializationError) Is(target error) bool { return target == ErrInitialization }

// ProcessingError means a status check reported a failure mid-job.
type ProcessingError struct {
	Cause error
	Polls int
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s after %d polls: %v", ErrProcessing, e.Polls, e.Cause)
}

func (e *ProcessingError) Unwrap() error        { return e.Cause }
func (e *ProcessingError) Is(target error) bool { return target == ErrProcessing }

// TimeoutError means max wait elapsed before progress reached 100.
type TimeoutError struct {
	Elapsed  time.Duration
	Progress int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s after %d seconds (progress %d%%)", ErrTimeout, int(e.Elapsed.Seconds()), e.Progress)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// RetrievalError means the job finished but the artifact could not be downloaded.
type RetrievalError struct {
	Object string
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("%s %s: %v", ErrRetrieval, e.Object, e.Err)
}

func (e *RetrievalError) Unwrap() error        { return e.Err }
func (e *RetrievalError) Is(target error) bool { return target == ErrRetrieval }

// Outcome labels a Synthesize result for metrics and persisted error codes.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "succeeded"
	case errors.Is(err, ErrAuthentication):
		return "auth_failed"
	case errors.Is(err, ErrInitialization):
		return "init_failed"
	case errors.Is(err, ErrProcessing):
		return "processing_failed"
	case errors.Is(err, ErrTimeout):
		return "timed_out"
	case errors.Is(err, ErrRetrieval):
		return "retrieval_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
