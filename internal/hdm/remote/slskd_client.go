// =============================================================================
// FILE: internal/hdm/remote/slskd_client.go
// PURPOSE: TransferClient implementation for a slskd-shaped HTTP gateway,
//          built on hashicorp/go-retryablehttp the way
//          rescale-labs-Rescale_Interlink's internal/api/client.go wires its
//          retry client (RetryMax, RetryWaitMin/Max, custom Logger).
// =============================================================================

package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"harmonydl/internal/logging"
)

// SlskdClient drives a slskd-shaped HTTP API: POST to enqueue, DELETE to
// cancel, GET (polled) to follow a transfer's status stream.
type SlskdClient struct {
	httpClient *retryablehttp.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration
}

// SlskdClientConfig configures a SlskdClient.
type SlskdClientConfig struct {
	BaseURL       string
	APIKey        string
	TimeoutMS     int
	MaxAttempts   int
	BackoffBaseMS int
}

// NewSlskdClient builds a SlskdClient with a retryablehttp transport.
func NewSlskdClient(cfg SlskdClientConfig) *SlskdClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxAttempts
	rc.RetryWaitMin = time.Duration(cfg.BackoffBaseMS) * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = &retryLogAdapter{}
	// Once retries are exhausted, hand the last response back so its status
	// is classified by classifyStatus instead of a generic give-up error.
	rc.ErrorHandler = func(resp *http.Response, err error, _ int) (*http.Response, error) {
		if resp != nil {
			return resp, nil
		}
		return nil, err
	}

	return &SlskdClient{
		httpClient: rc,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		timeout:    time.Duration(cfg.TimeoutMS) * time.Millisecond,
	}
}

// retryLogAdapter bridges retryablehttp.LeveledLogger onto our structured
// logger.
type retryLogAdapter struct{}

func (l *retryLogAdapter) Error(msg string, kv ...interface{}) { logging.Remote().Error(msg, kv...) }
func (l *retryLogAdapter) Info(msg string, kv ...interface{})  { logging.Remote().Debug(msg, kv...) }
func (l *retryLogAdapter) Debug(msg string, kv ...interface{}) { logging.Remote().Debug(msg, kv...) }
func (l *retryLogAdapter) Warn(msg string, kv ...interface{})  { logging.Remote().Warn(msg, kv...) }

func (c *SlskdClient) newRequest(ctx context.Context, method, path string, body any) (*retryablehttp.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

// Enqueue starts a transfer for the given peer username and file list.
func (c *SlskdClient) Enqueue(ctx context.Context, username string, files []RemoteFile) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v0/transfers/"+url.PathEscape(username), map[string]any{"files": files})
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	return classifyStatus(resp, "slskd rejected the enqueue request")
}

// Cancel cancels an in-flight transfer.
func (c *SlskdClient) Cancel(ctx context.Context, transferID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v0/transfers/"+url.PathEscape(transferID), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	return classifyStatus(resp, "slskd rejected the cancel request")
}

// wireEvent is the on-the-wire shape of one status event.
type wireEvent struct {
	DownloadID       string         `json:"download_id"`
	Status           string         `json:"status"`
	Path             string         `json:"path,omitempty"`
	BytesWritten     int64          `json:"bytes_written,omitempty"`
	Retryable        *bool          `json:"retryable,omitempty"`
	RetryAfterSec    *float64       `json:"retry_after_seconds,omitempty"`
	RetryAfterMillis *float64       `json:"retry_after_ms,omitempty"`
	Payload          map[string]any `json:"payload,omitempty"`
}

// StreamDownloadEvents polls GET /api/v0/transfers/events?key=<idempotencyKey>
// every pollInterval seconds, decoding the response body as
// newline-delimited JSON events accumulated since the stream began, and
// delivers any events not yet seen. The stream ends (channel closed) once a
// "completed" or "failed" event is seen, the gateway returns a final error,
// or ctx is done.
func (c *SlskdClient) StreamDownloadEvents(ctx context.Context, idempotencyKey string, pollInterval float64) (<-chan TransferEvent, error) {
	out := make(chan TransferEvent, 4)

	go func() {
		defer close(out)

		interval := time.Duration(pollInterval * float64(time.Second))
		if interval <= 0 {
			interval = 250 * time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		delivered := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			events, err := c.fetchEvents(ctx, idempotencyKey)
			if err != nil {
				out <- errorEvent(err)
				return
			}

			for ; delivered < len(events); delivered++ {
				evt := toTransferEvent(events[delivered])
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
				if evt.Status == StatusCompleted || evt.Status == StatusFailed {
					return
				}
			}
		}
	}()

	return out, nil
}

func (c *SlskdClient) fetchEvents(ctx context.Context, idempotencyKey string) ([]wireEvent, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(reqCtx, http.MethodGet, "/api/v0/transfers/events?key="+url.QueryEscape(idempotencyKey), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp, "slskd rejected the events request"); err != nil {
		return nil, err
	}

	var events []wireEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var evt wireEvent
		if err := json.Unmarshal(line, &evt); err != nil {
			return nil, fmt.Errorf("slskd returned an invalid event line: %w", err)
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func toTransferEvent(w wireEvent) TransferEvent {
	evt := TransferEvent{
		DownloadID:   w.DownloadID,
		Status:       TransferStatus(w.Status),
		Path:         w.Path,
		BytesWritten: w.BytesWritten,
		Payload:      w.Payload,
	}

	if w.Retryable != nil {
		evt.Retryable = *w.Retryable
	}

	switch {
	case w.RetryAfterSec != nil:
		evt.RetryAfter = w.RetryAfterSec
	case w.RetryAfterMillis != nil:
		seconds := *w.RetryAfterMillis / 1000
		evt.RetryAfter = &seconds
	}

	return evt
}

// errorEvent represents a terminal stream failure as a synthetic "failed"
// event so the pipeline's single event-consuming loop handles it uniformly.
func errorEvent(err error) TransferEvent {
	retryable := false
	var rateErr *RateLimitedError
	var httpErr *HTTPStatusError
	var timeoutErr *TimeoutError
	switch {
	case errors.As(err, &rateErr):
		retryable = rateErr.Retryable()
	case errors.As(err, &httpErr):
		retryable = httpErr.Retryable()
	case errors.As(err, &timeoutErr):
		retryable = true
	}
	return TransferEvent{
		Status:    StatusFailed,
		Retryable: retryable,
		Payload:   map[string]any{"error": err.Error()},
	}
}

// classifyTransportError wraps a failure from the underlying HTTP round
// trip. A context deadline means the request actually timed out; anything
// else (connection refused, DNS failure, reset) is a distinct transport
// failure and shouldn't be reported as a timeout it wasn't.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Reason: err.Error()}
	}
	return &TransportError{Reason: err.Error()}
}

func classifyStatus(resp *http.Response, message string) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return NewRateLimitedError()
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	return &HTTPStatusError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Body:       string(body),
	}
}
