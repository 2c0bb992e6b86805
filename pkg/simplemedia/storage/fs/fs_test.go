package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

func blobOf(data []byte, ext string) simplemedia.Blob {
	sum := sha256.Sum256(data)
	return simplemedia.Blob{Hash: hex.EncodeToString(sum[:]), Extension: ext}
}

func stage(t *testing.T, b *Backend, data []byte) string {
	t.Helper()
	f, err := b.TempFile(context.Background())
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestBackend_WriteOnce(t *testing.T) {
	ctx := context.Background()
	b, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	data := []byte("hello media")
	blob := blobOf(data, "txt")

	exists, err := b.Exists(ctx, blob)
	require.NoError(t, err)
	assert.False(t, exists)

	first := stage(t, b, data)
	created, err := b.Write(ctx, first, blob)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoFileExists(t, first)

	second := stage(t, b, data)
	created, err = b.Write(ctx, second, blob)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoFileExists(t, second, "duplicate staging file must be discarded")

	p, err := b.Path(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(b.BaseDir(), blob.Name()), p)
	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestBackend_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	b, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	data := []byte("same bytes from many uploads")
	blob := blobOf(data, "bin")

	const writers = 16
	staged := make([]string, writers)
	for i := range staged {
		staged[i] = stage(t, b, data)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for _, p := range staged {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			created, err := b.Write(ctx, p, blob)
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	entries, err := os.ReadDir(b.BaseDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, blob.Name(), entries[0].Name())
}

func TestBackend_Delete(t *testing.T) {
	ctx := context.Background()
	b, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	data := []byte("to be removed")
	blob := blobOf(data, "txt")
	_, err = b.Write(ctx, stage(t, b, data), blob)
	require.NoError(t, err)

	require.NoError(t, b.Delete(ctx, blob))
	exists, err := b.Exists(ctx, blob)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, b.Delete(ctx, blob), "deleting a missing blob is not an error")
}

func TestBackend_RejectsInvalidNames(t *testing.T) {
	ctx := context.Background()
	b, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	bad := simplemedia.Blob{Hash: "../../etc/passwd", Extension: "txt"}
	_, err = b.Exists(ctx, bad)
	assert.ErrorIs(t, err, simplemedia.ErrInvalidPath)
	_, err = b.Path(ctx, bad)
	assert.ErrorIs(t, err, simplemedia.ErrInvalidPath)
}

func TestNew_RequiresBaseDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
