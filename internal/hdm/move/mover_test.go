package move

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMover_Move_SameDeviceRename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.flac")
	dst := filepath.Join(dir, "nested", "dst.flac")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	m := NewMover()
	require.NoError(t, m.Move(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestMover_CopyFallback_PreservesBytesAndRemovesSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.flac")
	dst := filepath.Join(dir, "nested", "dst.flac")
	payload := []byte("cross device payload")
	require.NoError(t, os.WriteFile(src, payload, 0644))
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0755))

	m := NewMover()
	require.NoError(t, m.copyFallback(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(dst + ".tmpcopy")
	assert.True(t, os.IsNotExist(err))
}
