package artifact

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSaveAndIndex(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := NewLocal(LocalConfig{Dir: root}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	shot := []byte{0x89, 0x50, 0x4e, 0x47}
	path, err := store.Save(ctx, Name("req-1", 1, "bypass", "png"), shot)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "req-1", "attempt_1_bypass.png"), path)

	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, shot, saved)

	_, err = store.Save(ctx, Name("req-1", 1, "bypass", "html"), []byte("<html/>"))
	require.NoError(t, err)

	indexData, err := os.ReadFile(filepath.Join(root, "req-1", "index.json"))
	require.NoError(t, err)
	var entries []indexEntry
	require.NoError(t, json.Unmarshal(indexData, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "req-1/attempt_1_bypass.html", entries[0].Name)
	assert.Equal(t, "req-1/attempt_1_bypass.png", entries[1].Name)
	assert.Equal(t, 4, entries[1].Bytes)
	assert.Len(t, entries[1].SHA256, 64)
}

func TestLocalRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(LocalConfig{Dir: t.TempDir()}, nil)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "../escape.png", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestLocalRejectsEmptyName(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(LocalConfig{Dir: t.TempDir()}, nil)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "  ", []byte("x"))
	require.Error(t, err)
}

func TestLocalCanceledContext(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(LocalConfig{Dir: t.TempDir()}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Save(ctx, "req/late.png", []byte("x"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewLocalRequiresDir(t *testing.T) {
	t.Parallel()

	_, err := NewLocal(LocalConfig{}, nil)
	require.Error(t, err)
}

func TestNoopAndMemory(t *testing.T) {
	t.Parallel()

	ref, err := NewNoop().Save(context.Background(), "req/a.png", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "noop://req/a.png", ref)

	mem := NewMemory()
	ref, err = mem.Save(context.Background(), "req/b.html", []byte("<html/>"))
	require.NoError(t, err)
	assert.Equal(t, "mem://req/b.html", ref)
	data, ok := mem.Get("req/b.html")
	require.True(t, ok)
	assert.Equal(t, []byte("<html/>"), data)
	assert.Equal(t, 1, mem.Len())
}

func TestArtifactName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "req-9/attempt_2_search.png", Name("req-9", 2, "search", "png"))
}
