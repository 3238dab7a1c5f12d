// =============================================================================
// FILE: internal/hdm/completion/monitor.go
// PURPOSE: Completion detection: awaits a bus event or falls back to scanning
//          downloads_dir by filename, then confirms size stability before
//          handing the candidate file back to the pipeline.
// =============================================================================

package completion

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"harmonydl/internal/logging"
)

// Monitor drives completion detection and size-stability confirmation for
// one downloads_dir. pollInterval's >=0.25s floor is enforced by
// internal/config.Validate, not here, so this package stays testable at
// any interval.
type Monitor struct {
	bus              *Bus
	downloadsDir     string
	pollInterval     time.Duration
	sizeStableWindow time.Duration
}

// NewMonitor creates a Monitor.
func NewMonitor(bus *Bus, downloadsDir string, pollInterval time.Duration, sizeStableWindow time.Duration) *Monitor {
	return &Monitor{
		bus:              bus,
		downloadsDir:     downloadsDir,
		pollInterval:     pollInterval,
		sizeStableWindow: sizeStableWindow,
	}
}

// AwaitCompletion subscribes to the bus for dedupeKey and waits for a
// validated, size-stable candidate file. expectedPath, when non-empty, is
// tried first (e.g. a path already known from the sidecar or a prior
// "completed" transfer event). There is no overall timeout: progress is
// ensured by the remote stream terminating or by ctx cancellation.
func (m *Monitor) AwaitCompletion(ctx context.Context, dedupeKey, artist, title, expectedPath string) (string, int64, error) {
	ch := m.bus.Subscribe(dedupeKey)
	defer m.bus.Unsubscribe(dedupeKey, ch)

	candidate := expectedPath
	var bytesWritten int64

	for {
		if candidate == "" {
			select {
			case <-ctx.Done():
				return "", 0, ctx.Err()
			case evt := <-ch:
				candidate = evt.Path
				bytesWritten = evt.BytesWritten
			case <-time.After(m.pollInterval):
				candidate = m.scanForCandidate(dedupeKey, artist, title)
			}
			if candidate == "" {
				continue
			}
		}

		info, err := os.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			logging.Completion().Debug("completion candidate invalid, retrying", "path", candidate, "error", err)
			candidate = ""
			continue
		}

		size, err := m.EnsureStable(ctx, candidate)
		if err != nil {
			return "", 0, err
		}
		if bytesWritten == 0 {
			bytesWritten = size
		}
		return candidate, bytesWritten, nil
	}
}

// EnsureStable polls path's size every pollInterval, declaring it stable
// once the same positive size has been observed for sizeStableWindow.
// Any shrink-to-zero or disappearance resets the stability clock; it never
// gives up short of ctx being done, matching the "no global timeout" rule.
func (m *Monitor) EnsureStable(ctx context.Context, path string) (int64, error) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	var lastSize int64 = -1
	var stableSince time.Time

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}

		info, err := os.Stat(path)
		if err != nil {
			lastSize = -1
			stableSince = time.Time{}
			continue
		}
		size := info.Size()
		if size <= 0 {
			lastSize = -1
			stableSince = time.Time{}
			continue
		}
		if size != lastSize {
			lastSize = size
			stableSince = time.Now()
			continue
		}
		if time.Since(stableSince) >= m.sizeStableWindow {
			return size, nil
		}
	}
}

// scanForCandidate walks downloadsDir for a file whose lowercased name
// contains either dedupeKey or both artist and title tokens.
func (m *Monitor) scanForCandidate(dedupeKey, artist, title string) string {
	dedupeLower := strings.ToLower(dedupeKey)
	artistLower := strings.ToLower(artist)
	titleLower := strings.ToLower(title)

	var found string
	_ = filepath.WalkDir(m.downloadsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		if strings.Contains(name, dedupeLower) ||
			(artistLower != "" && titleLower != "" && strings.Contains(name, artistLower) && strings.Contains(name, titleLower)) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	return found
}
