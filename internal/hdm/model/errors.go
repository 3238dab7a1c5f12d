// =============================================================================
// FILE: internal/hdm/model/errors.go
// PURPOSE: Typed error taxonomy for the orchestrator. Every error here
//          supports errors.As/Is so the worker loop and pipeline stages can
//          classify failures without string matching.
// =============================================================================

package model

import (
	"errors"
	"fmt"
)

// ValidationError indicates an invalid batch submission. It never reaches a
// worker; submit_batch returns it directly to the caller.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Reason)
}

// ConfigError indicates a fatal misconfiguration (unknown move_template
// placeholder, missing directory, invalid numeric bound).
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// RetryableDownloadError indicates a transient failure the worker should
// retry: a remote 429/5xx, a network timeout, or a peer-reported transient
// condition. RetryAfterSeconds, when non-nil, overrides the computed backoff
// floor per the worker's retry_after hint rule.
type RetryableDownloadError struct {
	Reason            string
	RetryAfterSeconds *float64
	Err               error
}

func (e *RetryableDownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retryable download error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("retryable download error: %s", e.Reason)
}

func (e *RetryableDownloadError) Unwrap() error { return e.Err }

// FatalDownloadError indicates a definitive peer failure, an unsupported
// response, or a stream that ended without completing.
type FatalDownloadError struct {
	Reason string
	Err    error
}

func (e *FatalDownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal download error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("fatal download error: %s", e.Reason)
}

func (e *FatalDownloadError) Unwrap() error { return e.Err }

// PipelineError wraps an unexpected error raised inside a pipeline stage.
// Treated as fatal unless Retryable is explicitly set.
type PipelineError struct {
	Stage     string
	Err       error
	Retryable bool
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error in stage %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// CancellationError records a worker or pipeline stage cooperatively
// stopping because of an orchestrator shutdown.
type CancellationError struct {
	Reason string
}

func (e *CancellationError) Error() string {
	if e.Reason == "" {
		return "cancelled"
	}
	return fmt.Sprintf("cancelled: %s", e.Reason)
}

// IsRetryable reports whether err should be retried by the worker loop,
// per the failure classification policy: RetryableDownloadError is
// retryable; a PipelineError retries only if explicitly marked so;
// everything else (FatalDownloadError, CancellationError, unclassified
// errors) is fatal.
func IsRetryable(err error) bool {
	var retryable *RetryableDownloadError
	if errors.As(err, &retryable) {
		return true
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// RetryAfterHint extracts an explicit retry_after hint from err, if any.
func RetryAfterHint(err error) *float64 {
	var retryable *RetryableDownloadError
	if errors.As(err, &retryable) {
		return retryable.RetryAfterSeconds
	}
	return nil
}
