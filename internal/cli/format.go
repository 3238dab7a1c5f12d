// =============================================================================
// FILE: internal/cli/format.go
// PURPOSE: Human-readable BatchSummary rendering for the submit command,
//          grounded on the teacher's internal/download/progress/convert.go
//          (dustin/go-humanize byte/duration formatting).
// =============================================================================

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"harmonydl/internal/hdm/model"
)

// FormatSummary renders a BatchSummary as a multi-line human-readable report.
func FormatSummary(s model.BatchSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "batch %s: %s (requested by %s)\n", s.BatchID, s.Status, s.RequestedBy)
	fmt.Fprintf(&b, "  succeeded=%d failed=%d duplicates=%d retries=%d dedupe_hits=%d\n",
		s.Totals.Succeeded, s.Totals.Failed, s.Totals.Duplicates, s.Totals.Retries, s.Totals.DedupeHits)
	fmt.Fprintf(&b, "  processing time: min=%s p50=%s p95=%s p99=%s max=%s\n",
		formatSeconds(s.Duration.Min), formatSeconds(s.Duration.P50), formatSeconds(s.Duration.P95),
		formatSeconds(s.Duration.P99), formatSeconds(s.Duration.Max))

	for _, item := range s.Items {
		fmt.Fprintf(&b, "  - [%s] %s", item.State, item.ItemID)
		if item.FinalPath != "" {
			fmt.Fprintf(&b, " -> %s (%s)", item.FinalPath, humanize.Bytes(uint64(item.BytesWritten)))
		}
		if item.Quality != "" {
			fmt.Fprintf(&b, " [%s]", item.Quality)
		}
		if item.Error != "" {
			fmt.Fprintf(&b, " error=%q", item.Error)
		}
		b.WriteByte('\n')
	}

	return b.String()
}

func formatSeconds(seconds float64) string {
	return formatDuration(time.Duration(seconds * float64(time.Second)))
}

// formatDuration renders compactly: "12.34s" under a minute, "2m30s" under
// an hour, and "1h2m" (seconds dropped) from an hour up.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
