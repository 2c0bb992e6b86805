package simplemedia_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/pool"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
)

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name    string
		options []simplemedia.Option
	}{
		{name: "no options should fail"},
		{
			name: "repository only should fail",
			options: []simplemedia.Option{
				simplemedia.WithRepository(memory.New()),
			},
		},
		{
			name: "missing content store should fail",
			options: []simplemedia.Option{
				simplemedia.WithRepository(memory.New()),
				simplemedia.WithContentStore(nil),
				simplemedia.WithTransformer(&fakeTransformer{}),
				simplemedia.WithWorkerPools(pool.New("image", 1, nil), pool.New("video", 1, nil)),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := simplemedia.New(tt.options...)
			assert.Error(t, err)
			assert.Nil(t, svc)
		})
	}
}

func TestIngest_NewAndExisting(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first := env.upload(t, "photo.JPG", "jpeg bytes")
	assert.Equal(t, simplemedia.StatusOK, first.Status)
	assert.Equal(t, "photo.JPG", first.Name)
	assert.Equal(t, hashOf("jpeg bytes"), first.Hash)
	assert.Equal(t, "jpg", first.Extension)
	assert.Equal(t, "image/jpeg", first.Type)
	assert.Equal(t, int64(len("jpeg bytes")), first.Size)
	assert.NotEmpty(t, first.ID)

	second := env.upload(t, "renamed.jpg", "jpeg bytes")
	assert.Equal(t, simplemedia.StatusExists, second.Status)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "photo.JPG", second.Name)

	count, err := env.repo.CountFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Only the blob is left in the upload directory; staging files are gone.
	entries, err := os.ReadDir(env.store.BaseDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, first.Blob().Name(), entries[0].Name())
}

func TestIngest_ExtensionFromPartType(t *testing.T) {
	env := newTestEnv(t)
	status, err := env.svc.Ingest(context.Background(), simplemedia.IngestRequest{
		Name:        "blob",
		ContentType: "image/png",
		Body:        strings.NewReader("png-ish"),
	})
	require.NoError(t, err)
	assert.Equal(t, "png", status.Extension)
	assert.Equal(t, "image/png", status.Type)
}

func TestIngest_BlobWithoutRecord(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	up := env.upload(t, "a.png", "orphan")

	_, err := env.repo.DeleteFiles(ctx, up.Hash, up.Extension)
	require.NoError(t, err)

	_, err = env.svc.Ingest(ctx, simplemedia.IngestRequest{Name: "a.png", Body: strings.NewReader("orphan")})
	assert.ErrorIs(t, err, simplemedia.ErrStoreInconsistency)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	up := env.upload(t, "a.gif", "gif bytes")

	byName, err := env.svc.Resolve(ctx, up.Blob().Name())
	require.NoError(t, err)
	assert.Equal(t, up.Blob(), byName)

	byID, err := env.svc.Resolve(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, up.Blob(), byID)

	_, err = env.svc.Resolve(ctx, "UnknownId")
	assert.ErrorIs(t, err, simplemedia.ErrNotFound)

	_, err = env.svc.Resolve(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, simplemedia.ErrInvalidPath)
}

func TestDetails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	up := env.upload(t, "a.png", "details")

	f, err := env.svc.Details(ctx, up.Blob())
	require.NoError(t, err)
	assert.Equal(t, up.ID, f.ID)

	_, err = env.svc.Details(ctx, simplemedia.Blob{Hash: hashOf("nope"), Extension: "png"})
	assert.ErrorIs(t, err, simplemedia.ErrNotFound)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, simplemedia.WithDeletionKey("caracal18"))
	up := env.upload(t, "a.png", "to remove")
	blob := up.Blob()

	_, err := env.svc.Thumbnail(ctx, blob)
	require.NoError(t, err)
	_, err = env.svc.Resize(ctx, blob, 50, 50, false)
	require.NoError(t, err)
	require.Len(t, derivedFiles(t, env.derivedDir), 2)

	t.Run("wrong key mutates nothing", func(t *testing.T) {
		for _, key := range []string{"", "caracal17"} {
			_, err := env.svc.Remove(ctx, blob, key)
			assert.ErrorIs(t, err, simplemedia.ErrForbidden)
		}
		exists, err := env.store.Exists(ctx, blob)
		require.NoError(t, err)
		assert.True(t, exists)
		assert.Len(t, derivedFiles(t, env.derivedDir), 2)
	})

	t.Run("right key removes everything", func(t *testing.T) {
		n, err := env.svc.Remove(ctx, blob, "caracal18")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		exists, err := env.store.Exists(ctx, blob)
		require.NoError(t, err)
		assert.False(t, exists)
		assert.Empty(t, derivedFiles(t, env.derivedDir))

		_, err = env.svc.Resolve(ctx, up.ID)
		assert.ErrorIs(t, err, simplemedia.ErrNotFound)
		_, err = env.svc.Details(ctx, blob)
		assert.ErrorIs(t, err, simplemedia.ErrNotFound)
		artifacts, err := env.repo.ListDerivedArtifacts(ctx, blob.Name())
		require.NoError(t, err)
		assert.Empty(t, artifacts)
	})

	t.Run("removing again reports zero", func(t *testing.T) {
		n, err := env.svc.Remove(ctx, blob, "caracal18")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestRemove_KeepsIDOfSiblingExtension(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	png := env.upload(t, "a.png", "same bytes")
	gif := env.upload(t, "a.gif", "same bytes")
	require.Equal(t, png.Hash, gif.Hash)
	require.NotEqual(t, png.Blob(), gif.Blob())
	assert.Equal(t, png.ID, gif.ID)

	n, err := env.svc.Remove(ctx, gif.Blob(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	blob, err := env.svc.Resolve(ctx, png.ID)
	require.NoError(t, err)
	assert.Equal(t, png.Blob(), blob)

	n, err = env.svc.Remove(ctx, png.Blob(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = env.svc.Resolve(ctx, png.ID)
	assert.ErrorIs(t, err, simplemedia.ErrNotFound)
}

func TestRemove_NoKeyConfigured(t *testing.T) {
	env := newTestEnv(t)
	up := env.upload(t, "a.png", "open deletion")

	n, err := env.svc.Remove(context.Background(), up.Blob(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func seedFiles(t *testing.T, repo *memory.Repository, n int) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		require.NoError(t, repo.CreateFile(context.Background(), &simplemedia.FileRecord{
			Name:      fmt.Sprintf("f%d", i),
			ID:        fmt.Sprintf("id%d", i),
			Hash:      hashOf(fmt.Sprint(i)),
			Extension: "png",
			Type:      "image/png",
			ModTime:   base.Add(time.Duration(i) * time.Hour),
		}))
	}
}

func names(files []*simplemedia.FileRecord) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

func TestPaginateFiles(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seedFiles(t, env.repo, 5)

	tests := []struct {
		name     string
		page     int
		pageSize int
		want     []string
	}{
		{"first page ascending", 0, 2, []string{"f1", "f2"}},
		{"second page ascending", 1, 2, []string{"f3", "f4"}},
		{"last partial page", 2, 2, []string{"f5"}},
		{"past the end", 3, 2, []string{}},
		{"negative page is newest", -1, 2, []string{"f5", "f4"}},
		{"page size clamps to two", 0, 1, []string{"f1", "f2"}},
		{"default page size", 0, 0, []string{"f1", "f2", "f3", "f4", "f5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := env.svc.PaginateFiles(ctx, tt.page, tt.pageSize)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(page.Files))
			assert.Equal(t, 5, page.Count)
		})
	}
}

func TestListFiles_NewestFirst(t *testing.T) {
	env := newTestEnv(t)
	seedFiles(t, env.repo, 3)

	files, err := env.svc.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"f3", "f2", "f1"}, names(files))
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	kept := env.upload(t, "kept.png", "kept")
	lost := env.upload(t, "lost.png", "lost")
	_, err := env.svc.Thumbnail(ctx, lost.Blob())
	require.NoError(t, err)

	p, err := env.store.Path(ctx, lost.Blob())
	require.NoError(t, err)
	require.NoError(t, os.Remove(p))

	report, err := env.svc.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, []simplemedia.Blob{lost.Blob()}, report.Missing)
	assert.Equal(t, 0, report.Repaired)

	_, err = env.svc.Details(ctx, lost.Blob())
	require.NoError(t, err, "reporting alone changes nothing")

	report, err = env.svc.Reconcile(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired)

	_, err = env.svc.Details(ctx, lost.Blob())
	assert.ErrorIs(t, err, simplemedia.ErrNotFound)
	_, err = env.svc.Resolve(ctx, lost.ID)
	assert.ErrorIs(t, err, simplemedia.ErrNotFound)
	assert.NoFileExists(t, filepath.Join(env.derivedDir, "thumbnail-"+lost.Blob().Name()))

	_, err = env.svc.Details(ctx, kept.Blob())
	assert.NoError(t, err)
}
