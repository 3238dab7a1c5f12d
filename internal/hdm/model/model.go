// =============================================================================
// FILE: internal/hdm/model/model.go
// PURPOSE: Core data model for the download orchestrator: requests, the
//          normalized DownloadItem, per-item results/events, sidecars and
//          duration statistics. Mutated only by the worker processing an item
//          plus the Aggregator under its own lock (see internal/hdm/aggregator).
// =============================================================================

package model

import (
	"fmt"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// ItemRequest is a single track request before normalization into a
// DownloadItem.
type ItemRequest struct {
	Artist          string   `json:"artist"`
	Title           string   `json:"title"`
	Album           string   `json:"album,omitempty"`
	ISRC            string   `json:"isrc,omitempty"`
	DedupeKey       string   `json:"dedupe_key,omitempty"` // explicit override; if empty, derived
	Priority        int      `json:"priority,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Bitrate         *int     `json:"bitrate,omitempty"`
}

// BatchRequest is an ordered set of item requests submitted together.
type BatchRequest struct {
	BatchID         string        `json:"batch_id,omitempty"` // optional; generated if empty
	RequestedBy     string        `json:"requested_by"`
	DedupeKeyPrefix string        `json:"dedupe_key_prefix,omitempty"`
	DefaultPriority int           `json:"default_priority,omitempty"`
	Items           []ItemRequest `json:"items"`
}

// ---------------------------------------------------------------------------
// DownloadItem
// ---------------------------------------------------------------------------

// DownloadItem is immutable after normalization.
type DownloadItem struct {
	BatchID         string
	ItemID          string
	Artist          string
	Title           string
	Album           string
	ISRC            string
	RequestedBy     string
	Priority        int
	DedupeKey       string
	DurationSeconds *float64
	Bitrate         *int
	Index           int
}

// DeriveDedupeKey computes the canonical dedupe key for an item request:
// the explicit key if given, else the uppercased ISRC, else a lowercase
// "artist|title[|album]" tuple, optionally prefixed with "prefix:".
func DeriveDedupeKey(req ItemRequest, prefix string) string {
	var base string
	switch {
	case strings.TrimSpace(req.DedupeKey) != "":
		base = strings.TrimSpace(req.DedupeKey)
	case strings.TrimSpace(req.ISRC) != "":
		base = strings.ToUpper(strings.TrimSpace(req.ISRC))
	default:
		parts := []string{
			strings.ToLower(strings.TrimSpace(req.Artist)),
			strings.ToLower(strings.TrimSpace(req.Title)),
		}
		if strings.TrimSpace(req.Album) != "" {
			parts = append(parts, strings.ToLower(strings.TrimSpace(req.Album)))
		}
		base = strings.Join(parts, "|")
	}
	if prefix == "" {
		return base
	}
	return fmt.Sprintf("%s:%s", prefix, base)
}

// ---------------------------------------------------------------------------
// Item state / results
// ---------------------------------------------------------------------------

// ItemState is the lifecycle state of a single item within a batch.
type ItemState string

const (
	StateQueued    ItemState = "queued"
	StateRunning   ItemState = "running"
	StateDone      ItemState = "done"
	StateFailed    ItemState = "failed"
	StateDuplicate ItemState = "duplicate"
)

// Well-known event names used by phase-duration metrics.
const (
	EventDownloadAccepted   = "download.accepted"
	EventDownloadInProgress = "download.in_progress"
	EventDownloadCompleted  = "download.completed"
	EventDownloadDetected   = "download.detected"
	EventTaggingCompleted   = "tagging.completed"
	EventTaggingSkipped     = "tagging.skipped"
	EventFileMoved          = "file.moved"
	EventDedupeSkip         = "dedupe.skip"
)

// ItemEvent records a single timestamped occurrence in an item's lifecycle.
type ItemEvent struct {
	Name      string
	Timestamp time.Time
	Meta      map[string]any
}

// ItemResult is the mutable, per-item outcome tracked by the Aggregator.
type ItemResult struct {
	ItemID        string
	State         ItemState
	Attempts      int
	FinalPath     string
	TagsWritten   bool
	BytesWritten  int64
	Duration      *float64 // seconds
	Quality       string
	ContentHash   string
	Error         string
	Events        []ItemEvent
}

// DownloadOutcome is what the pipeline returns for a successfully processed
// item.
type DownloadOutcome struct {
	FinalPath    string
	TagsWritten  bool
	BytesWritten int64
	Duration     float64
	Quality      string
	ContentHash  string
	Events       []ItemEvent
}

// ---------------------------------------------------------------------------
// Sidecar
// ---------------------------------------------------------------------------

// SidecarStatus enumerates the recovery-relevant phases of an in-flight item.
type SidecarStatus string

const (
	SidecarReserved   SidecarStatus = "reserved"
	SidecarDownloading SidecarStatus = "downloading"
	SidecarDownloaded SidecarStatus = "downloaded"
	SidecarMoved      SidecarStatus = "moved"
)

// Sidecar is the on-disk recovery record for one in-flight pipeline run.
type Sidecar struct {
	BatchID      string        `json:"batch_id"`
	ItemID       string        `json:"item_id"`
	DedupeKey    string        `json:"dedupe_key"`
	Attempt      int           `json:"attempt"`
	Status       SidecarStatus `json:"status"`
	SourcePath   string        `json:"source_path,omitempty"`
	DownloadID   string        `json:"download_id,omitempty"`
	BytesWritten int64         `json:"bytes_written,omitempty"`
	FinalPath    string        `json:"final_path,omitempty"`
	ContentHash  string        `json:"content_hash,omitempty"`
}

// ---------------------------------------------------------------------------
// Batch totals / summary
// ---------------------------------------------------------------------------

// BatchTotals is the running tally of outcomes for a batch.
type BatchTotals struct {
	Queued     int
	Running    int
	Succeeded  int
	Failed     int
	Retries    int
	Duplicates int
	DedupeHits int
}

// BatchStatus is the final, resolved status of a batch.
type BatchStatus string

const (
	BatchSuccess BatchStatus = "success"
	BatchPartial BatchStatus = "partial"
	BatchFailure BatchStatus = "failure"
)

// DurationStats summarizes a set of processing-time samples.
type DurationStats struct {
	Min  float64
	Max  float64
	Mean float64
	P50  float64
	P95  float64
	P99  float64
}

// BatchSummary is the final, aggregated outcome of a batch.
type BatchSummary struct {
	BatchID     string
	Status      BatchStatus
	RequestedBy string
	Totals      BatchTotals
	Items       []ItemResult
	Duration    DurationStats
}
