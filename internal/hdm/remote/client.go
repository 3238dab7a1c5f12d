// =============================================================================
// FILE: internal/hdm/remote/client.go
// PURPOSE: Remote Transfer Client interface consumed by the Pipeline: the
//          Soulseek-like peer gateway's enqueue/cancel/status-stream verbs.
//          Only the status stream and enqueue/cancel matter here; the wire
//          format of the peer protocol itself is out of scope.
// =============================================================================

package remote

import "context"

// TransferStatus enumerates the states a streamed transfer event may report.
type TransferStatus string

const (
	StatusAccepted   TransferStatus = "accepted"
	StatusInProgress TransferStatus = "in_progress"
	StatusCompleted  TransferStatus = "completed"
	StatusFailed     TransferStatus = "failed"
)

// TransferEvent is one status update in a transfer's event stream.
type TransferEvent struct {
	DownloadID   string
	Status       TransferStatus
	Path         string // set on "completed" when the gateway knows the local path
	BytesWritten int64
	Retryable    bool           // authoritative when the gateway sets it explicitly
	RetryAfter   *float64       // seconds; derived from retry_after_seconds or retry_after_ms/1000
	Payload      map[string]any // raw event fields, for diagnostics
}

// RemoteFile names one file offered by a peer, as passed to Enqueue.
type RemoteFile struct {
	Filename string
	Size     int64
}

// TransferClient is the narrow interface the Pipeline depends on. Enqueue is
// used by the surrounding system to start transfers, not by the Pipeline
// itself — the Pipeline only follows an already-started transfer's status
// stream.
type TransferClient interface {
	Enqueue(ctx context.Context, username string, files []RemoteFile) error
	Cancel(ctx context.Context, transferID string) error

	// StreamDownloadEvents delivers events for idempotencyKey on the
	// returned channel, polling the gateway at pollInterval, until the
	// stream completes, fails, or ctx is done. The channel is closed when
	// the stream ends. A send-side error (e.g. final HTTP failure) is
	// reported as a synthetic "failed" event, the last one delivered.
	StreamDownloadEvents(ctx context.Context, idempotencyKey string, pollInterval float64) (<-chan TransferEvent, error)
}
