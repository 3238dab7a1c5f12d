// =============================================================================
// FILE: internal/hdm/dedupe/manager.go
// PURPOSE: Dedupe Manager: owns the lock table, the persistent index, and
//          destination-path templating for the pipeline's move stage.
// =============================================================================

package dedupe

import (
	"context"
	"path/filepath"

	"harmonydl/internal/hdm/model"
)

// Manager is the Dedupe Manager component: per-key locking, index
// persistence, and template-driven destination paths.
type Manager struct {
	stateDir  string
	musicRoot string
	template  string
	index     *Index
	locks     *lockTable
}

// NewManager opens (or creates) the dedupe index under stateDir and returns
// a ready Manager. moveTemplate is validated eagerly so a bad config fails
// at startup rather than on the first item. musicRoot is the library root
// the rendered template is joined onto.
func NewManager(stateDir, musicRoot, moveTemplate string) (*Manager, error) {
	if err := validatePlaceholders(moveTemplate); err != nil {
		return nil, err
	}

	idx, err := OpenIndex(filepath.Join(stateDir, "dedupe_index.json"))
	if err != nil {
		return nil, err
	}

	return &Manager{
		stateDir:  stateDir,
		musicRoot: musicRoot,
		template:  moveTemplate,
		index:     idx,
		locks:     newLockTable(),
	}, nil
}

// AcquireLock blocks until the exclusive per-dedupe-key lock is held.
func (m *Manager) AcquireLock(ctx context.Context, dedupeKey string) (*Lock, error) {
	return AcquireLock(ctx, filepath.Join(m.stateDir, "locks"), dedupeKey, m.locks)
}

// Lookup returns the final_path registered for dedupeKey, if the index has
// an entry for it.
func (m *Manager) Lookup(dedupeKey string) (string, bool) {
	return m.index.Lookup(dedupeKey)
}

// Register persists dedupeKey -> finalPath in the index.
func (m *Manager) Register(dedupeKey, finalPath string) error {
	return m.index.Register(dedupeKey, finalPath)
}

// Forget removes dedupeKey from the index. Nothing in this module calls it;
// Recovery leaves index entries whose file no longer exists in place.
func (m *Manager) Forget(dedupeKey string) error {
	return m.index.Remove(dedupeKey)
}

// Destination renders the final destination path for item using the
// manager's move_template, given the source file's extension (without the
// leading dot; pass "" to default to "bin").
func (m *Manager) Destination(item *model.DownloadItem, extension string) (string, error) {
	rendered, err := Render(m.template, TemplateVars{
		Artist:    item.Artist,
		Album:     item.Album,
		Title:     item.Title,
		DedupeKey: item.DedupeKey,
		BatchID:   item.BatchID,
		ItemID:    item.ItemID,
		Extension: extension,
	})
	if err != nil {
		return "", err
	}
	return filepath.Join(m.musicRoot, rendered), nil
}
