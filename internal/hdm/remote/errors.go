// =============================================================================
// FILE: internal/hdm/remote/errors.go
// PURPOSE: Remote client error taxonomy, grounded on
//          original_source/app/integrations/slskd_client.py's exception
//          hierarchy (timeout class vs HTTP-status class vs rate-limited).
// =============================================================================

package remote

import "fmt"

// TimeoutError indicates a request exceeded its configured timeout.
type TimeoutError struct {
	Reason string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("slskd request timed out: %s", e.Reason) }

// TransportError indicates the request never reached the gateway at all
// (connection refused, DNS failure, connection reset) — distinct from a
// TimeoutError, which means the round trip started but exceeded its deadline.
type TransportError struct {
	Reason string
}

func (e *TransportError) Error() string { return fmt.Sprintf("slskd request failed: %s", e.Reason) }

// HTTPStatusError indicates the gateway responded with an unexpected status.
type HTTPStatusError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("slskd returned status %d: %s", e.StatusCode, e.Message)
}

// RateLimitedError is HTTPStatusError's 429 special case.
type RateLimitedError struct {
	HTTPStatusError
}

func NewRateLimitedError() *RateLimitedError {
	return &RateLimitedError{HTTPStatusError{StatusCode: 429, Message: "slskd rate limited the request"}}
}

// Retryable reports whether an HTTP-status-classified error should be
// retried by the caller: 429 and any 5xx, per spec.md §6.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
