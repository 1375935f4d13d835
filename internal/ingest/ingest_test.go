package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWalkDirectory_FiltersAndSkipsHidden(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "%PDF-1.4")
	writeFile(t, filepath.Join(root, "b.txt"), "INVOICE")
	writeFile(t, filepath.Join(root, "notes.docx"), "skip")
	writeFile(t, filepath.Join(root, ".hidden", "c.pdf"), "%PDF-1.4")
	writeFile(t, filepath.Join(root, "sub", "d.PNG"), "png")

	paths, failed, stats, err := WalkDirectory(context.Background(), root, true)
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Equal(t, []string{
		filepath.Join(root, "a.pdf"),
		filepath.Join(root, "b.txt"),
		filepath.Join(root, "sub", "d.PNG"),
	}, paths)
	assert.Equal(t, uint32(3), stats.Matched)

	paths, _, _, err = WalkDirectory(context.Background(), root, false)
	require.NoError(t, err)
	assert.Len(t, paths, 4)
}

func TestWalkDirectory_RequiresRoot(t *testing.T) {
	_, _, _, err := WalkDirectory(context.Background(), "  ", false)
	assert.Error(t, err)
}

func TestLoader_DeduplicatesByContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one.txt"), "INVOICE 1")
	writeFile(t, filepath.Join(root, "copy.txt"), "INVOICE 1")
	writeFile(t, filepath.Join(root, "two.txt"), "INVOICE 2")

	l := NewLoader()
	doc, dup, err := l.Load(filepath.Join(root, "one.txt"))
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, "one.txt", doc.FileName)
	assert.Len(t, doc.FileID, 64)
	assert.Equal(t, []byte("INVOICE 1"), doc.Content)

	again, dup, err := l.Load(filepath.Join(root, "one.txt"))
	require.NoError(t, err)
	assert.False(t, dup, "reloading the same path is not a duplicate")
	assert.Equal(t, doc.FileID, again.FileID)

	_, dup, err = l.Load(filepath.Join(root, "copy.txt"))
	require.NoError(t, err)
	assert.True(t, dup)

	_, dup, err = l.Load(filepath.Join(root, "two.txt"))
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestLoader_RejectsUnknownExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x.docx"), "nope")
	_, _, err := NewLoader().Load(filepath.Join(root, "x.docx"))
	assert.Error(t, err)
}

func TestWatch_InitialScanAndNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.pdf"), "%PDF-1.4")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := Watch(ctx, WatchConfig{Roots: []string{root}, InitialScan: true}, nil)
	require.NoError(t, err)

	select {
	case p := <-events:
		assert.Equal(t, filepath.Join(root, "existing.pdf"), p)
	case <-time.After(5 * time.Second):
		t.Fatal("initial scan did not emit")
	}

	fresh := filepath.Join(root, "fresh.txt")
	writeFile(t, fresh, "INVOICE")
	select {
	case p := <-events:
		assert.Equal(t, fresh, p)
	case <-time.After(5 * time.Second):
		t.Fatal("new file was not reported")
	}

	cancel()
	for range events {
	}
}

func TestWatch_NoRoots(t *testing.T) {
	_, _, err := Watch(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}
