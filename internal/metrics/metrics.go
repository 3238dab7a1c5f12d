// =============================================================================
// FILE: internal/metrics/metrics.go
// PURPOSE: A small, contractual counter/histogram registry for the
//          Aggregator's metric emission. No external metrics SDK in the
//          retrieved pack exposes an HTTP/pull exporter suitable for an
//          in-process library consumer (see DESIGN.md) — this package only
//          needs to hold the counters/histograms the contract names and let
//          a caller read a snapshot, so it is intentionally stdlib-only.
// =============================================================================

package metrics

import (
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Counter
// ---------------------------------------------------------------------------

// Counter is a labeled monotonic counter, keyed by a label value (e.g. an
// item state or error type).
type Counter struct {
	mu     sync.Mutex
	name   string
	values map[string]int64
}

func newCounter(name string) *Counter {
	return &Counter{name: name, values: make(map[string]int64)}
}

// Inc increments the counter for the given label by 1.
func (c *Counter) Inc(label string) {
	c.Add(label, 1)
}

// Add increments the counter for the given label by delta.
func (c *Counter) Add(label string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[label] += delta
}

// Snapshot returns a copy of the counter's current label->value map.
func (c *Counter) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// Histogram
// ---------------------------------------------------------------------------

// Histogram stores raw observation samples per label, for nearest-rank
// percentile computation. Not a bucketed histogram — the contract only
// requires percentile reporting, and raw samples are simplest to get exactly
// right for a library consumed in-process.
type Histogram struct {
	mu      sync.Mutex
	name    string
	samples map[string][]float64
}

func newHistogram(name string) *Histogram {
	return &Histogram{name: name, samples: make(map[string][]float64)}
}

// Observe records a sample for the given label.
func (h *Histogram) Observe(label string, value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples[label] = append(h.samples[label], value)
}

// Snapshot returns a copy of the samples observed for label, sorted
// ascending.
func (h *Histogram) Snapshot(label string) []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	src := h.samples[label]
	out := make([]float64, len(src))
	copy(out, src)
	sort.Float64s(out)
	return out
}

// ---------------------------------------------------------------------------
// Registry — the contractual metric names from spec.md §4.7
// ---------------------------------------------------------------------------

// Registry holds every metric the Aggregator emits. The names below are the
// contract; how a deployment exports them is outside the core's concern.
type Registry struct {
	ItemOutcomesTotal   *Counter   // labels: state
	ItemFailuresTotal   *Counter   // labels: error_type
	ItemRetriesTotal    *Counter   // labels: error_type
	DuplicatesTotal     *Counter   // labels: already_processed ("true"/"false")
	DedupeHitsTotal     *Counter   // unlabeled (single "" key)
	ProcessingSeconds   *Histogram // unlabeled
	PhaseDurationSeconds *Histogram // labels: phase
}

// New creates an empty Registry with every contractual metric initialized.
func New() *Registry {
	return &Registry{
		ItemOutcomesTotal:    newCounter("item_outcomes_total"),
		ItemFailuresTotal:    newCounter("item_failures_total"),
		ItemRetriesTotal:     newCounter("item_retries_total"),
		DuplicatesTotal:      newCounter("duplicates_total"),
		DedupeHitsTotal:      newCounter("dedupe_hits_total"),
		ProcessingSeconds:    newHistogram("processing_seconds"),
		PhaseDurationSeconds: newHistogram("phase_duration_seconds"),
	}
}

// defaultRegistry is used by callers that don't wire their own (e.g. tests).
var defaultRegistry = New()

// Default returns the process-wide default Registry.
func Default() *Registry { return defaultRegistry }
