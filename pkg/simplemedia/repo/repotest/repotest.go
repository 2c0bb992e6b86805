// Package repotest holds the behavior every simplemedia.Repository backend
// must share. Backend packages call Run from their own tests.
package repotest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Factory returns an empty repository. It is called once per subtest.
type Factory func(t *testing.T) simplemedia.Repository

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func hashN(n int) string {
	return fmt.Sprintf("%064x", n)
}

func record(n int, url string) *simplemedia.FileRecord {
	return &simplemedia.FileRecord{
		Name:      fmt.Sprintf("file-%d.png", n),
		ID:        fmt.Sprintf("id%d", n),
		Size:      int64(100 + n),
		Hash:      hashN(n),
		Extension: "png",
		Type:      "image/png",
		URL:       url,
		ModTime:   base.Add(time.Duration(n) * time.Minute),
	}
}

// Run executes the shared repository behavior against newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("Files", func(t *testing.T) { testFiles(t, newRepo(t)) })
	t.Run("FileOrdering", func(t *testing.T) { testFileOrdering(t, newRepo(t)) })
	t.Run("DeleteFiles", func(t *testing.T) { testDeleteFiles(t, newRepo(t)) })
	t.Run("IDMappings", func(t *testing.T) { testIDMappings(t, newRepo(t)) })
	t.Run("DerivedArtifacts", func(t *testing.T) { testDerivedArtifacts(t, newRepo(t)) })
}

func testFiles(t *testing.T, repo simplemedia.Repository) {
	ctx := context.Background()

	_, err := repo.GetFile(ctx, hashN(1), "png")
	assert.ErrorIs(t, err, simplemedia.ErrNotFound)

	f := record(1, "")
	require.NoError(t, repo.CreateFile(ctx, f))

	got, err := repo.GetFile(ctx, f.Hash, f.Extension)
	require.NoError(t, err)
	assert.Equal(t, f.Name, got.Name)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, f.Size, got.Size)
	assert.Equal(t, f.Type, got.Type)
	assert.Empty(t, got.URL)
	assert.True(t, f.ModTime.Equal(got.ModTime), "mtime %v != %v", f.ModTime, got.ModTime)

	_, err = repo.GetFile(ctx, f.Hash, "jpg")
	assert.ErrorIs(t, err, simplemedia.ErrNotFound)

	// The same blob reached through two URLs has two records.
	a := record(2, "http://a.example/x.png")
	b := record(2, "http://b.example/x.png")
	require.NoError(t, repo.CreateFile(ctx, a))
	require.NoError(t, repo.CreateFile(ctx, b))

	byURL, err := repo.GetFileByURL(ctx, b.URL)
	require.NoError(t, err)
	assert.Equal(t, b.URL, byURL.URL)
	assert.Equal(t, b.Hash, byURL.Hash)

	_, err = repo.GetFileByURL(ctx, "http://c.example/x.png")
	assert.ErrorIs(t, err, simplemedia.ErrNotFound)

	err = repo.CreateFile(ctx, record(3, a.URL))
	assert.ErrorIs(t, err, simplemedia.ErrDuplicate)

	// Records without a URL never collide.
	require.NoError(t, repo.CreateFile(ctx, record(4, "")))
	require.NoError(t, repo.CreateFile(ctx, record(5, "")))

	count, err := repo.CountFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func testFileOrdering(t *testing.T, repo simplemedia.Repository) {
	ctx := context.Background()

	for _, n := range []int{3, 1, 4, 2, 5} {
		require.NoError(t, repo.CreateFile(ctx, record(n, "")))
	}

	names := func(files []*simplemedia.FileRecord) []string {
		out := make([]string, len(files))
		for i, f := range files {
			out[i] = f.Name
		}
		return out
	}

	desc, err := repo.ListFiles(ctx, simplemedia.ListFilesParams{})
	require.NoError(t, err)
	assert.Equal(t, []string{"file-5.png", "file-4.png", "file-3.png", "file-2.png", "file-1.png"}, names(desc))

	asc, err := repo.ListFiles(ctx, simplemedia.ListFilesParams{Ascending: true, Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"file-3.png", "file-4.png"}, names(asc))

	newest, err := repo.ListFiles(ctx, simplemedia.ListFilesParams{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"file-5.png", "file-4.png"}, names(newest))

	past, err := repo.ListFiles(ctx, simplemedia.ListFilesParams{Ascending: true, Offset: 10, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func testDeleteFiles(t *testing.T, repo simplemedia.Repository) {
	ctx := context.Background()

	require.NoError(t, repo.CreateFile(ctx, record(1, "http://a.example/1")))
	require.NoError(t, repo.CreateFile(ctx, record(1, "http://b.example/1")))
	require.NoError(t, repo.CreateFile(ctx, record(2, "")))

	n, err := repo.DeleteFiles(ctx, hashN(1), "png")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.DeleteFiles(ctx, hashN(1), "png")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, err := repo.CountFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The URL is free again once its record is gone.
	require.NoError(t, repo.CreateFile(ctx, record(1, "http://a.example/1")))
}

func testIDMappings(t *testing.T, repo simplemedia.Repository) {
	ctx := context.Background()

	_, err := repo.GetIDMapping(ctx, "BraveOtter")
	assert.ErrorIs(t, err, simplemedia.ErrNotFound)
	_, err = repo.GetIDMappingByHash(ctx, hashN(1))
	assert.ErrorIs(t, err, simplemedia.ErrNotFound)

	m := &simplemedia.IDMapping{ID: "BraveOtter", Hash: hashN(1), Extension: "png"}
	require.NoError(t, repo.CreateIDMapping(ctx, m))

	got, err := repo.GetIDMapping(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, *m, *got)

	got, err = repo.GetIDMappingByHash(ctx, m.Hash)
	require.NoError(t, err)
	assert.Equal(t, *m, *got)

	err = repo.CreateIDMapping(ctx, &simplemedia.IDMapping{ID: m.ID, Hash: hashN(2), Extension: "png"})
	assert.ErrorIs(t, err, simplemedia.ErrDuplicate, "id must be unique")

	err = repo.CreateIDMapping(ctx, &simplemedia.IDMapping{ID: "QuietFox", Hash: m.Hash, Extension: "png"})
	assert.ErrorIs(t, err, simplemedia.ErrDuplicate, "hash must be unique")

	require.NoError(t, repo.DeleteIDMapping(ctx, m.Hash))
	_, err = repo.GetIDMapping(ctx, m.ID)
	assert.ErrorIs(t, err, simplemedia.ErrNotFound)
	require.NoError(t, repo.DeleteIDMapping(ctx, m.Hash), "deleting a missing mapping is not an error")

	require.NoError(t, repo.CreateIDMapping(ctx, &simplemedia.IDMapping{ID: m.ID, Hash: hashN(3), Extension: "jpg"}))
}

func testDerivedArtifacts(t *testing.T, repo simplemedia.Repository) {
	ctx := context.Background()
	source := hashN(1) + ".png"
	other := hashN(2) + ".mp4"

	artifacts := []*simplemedia.DerivedArtifact{
		{DerivedPath: "thumbnail-" + source, SourcePath: source, CreatedAt: base},
		{DerivedPath: "100x100-" + source, SourcePath: source, CreatedAt: base},
		{DerivedPath: "ffmpeg-1-" + other + ".png", SourcePath: other, CreatedAt: base},
	}
	for _, a := range artifacts {
		require.NoError(t, repo.CreateDerivedArtifact(ctx, a))
	}
	// Racing producers register the same name twice.
	require.NoError(t, repo.CreateDerivedArtifact(ctx, artifacts[0]))

	list, err := repo.ListDerivedArtifacts(ctx, source)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "100x100-"+source, list[0].DerivedPath)
	assert.Equal(t, "thumbnail-"+source, list[1].DerivedPath)

	require.NoError(t, repo.DeleteDerivedArtifacts(ctx, source))
	list, err = repo.ListDerivedArtifacts(ctx, source)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = repo.ListDerivedArtifacts(ctx, other)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
