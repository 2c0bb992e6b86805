package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/repotest"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "media.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) simplemedia.Repository {
		return openTestRepo(t)
	})
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "media.db")

	repo, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, repo.CreateIDMapping(ctx, &simplemedia.IDMapping{ID: "CalmLynx", Hash: fmt.Sprintf("%064x", 1), Extension: "png"}))
	require.NoError(t, repo.Close())

	require.NoError(t, Migrate(path), "migrating an up-to-date database is a no-op")

	repo, err = Open(path)
	require.NoError(t, err)
	defer repo.Close()
	m, err := repo.GetIDMapping(ctx, "CalmLynx")
	require.NoError(t, err)
	assert.Equal(t, "png", m.Extension)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestSQLiteRepository_ConcurrentIDInsert(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	hash := fmt.Sprintf("%064x", 9)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.CreateIDMapping(ctx, &simplemedia.IDMapping{ID: fmt.Sprintf("id-%d", i), Hash: hash, Extension: "png"})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, simplemedia.ErrDuplicate)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
