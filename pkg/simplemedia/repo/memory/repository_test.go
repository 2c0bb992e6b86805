package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/repotest"
)

func TestMemoryRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) simplemedia.Repository {
		return New()
	})
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := New()

	f := &simplemedia.FileRecord{Name: "a.png", Hash: fmt.Sprintf("%064x", 1), Extension: "png", ModTime: time.Now()}
	require.NoError(t, repo.CreateFile(ctx, f))
	f.Name = "changed.png"

	got, err := repo.GetFile(ctx, f.Hash, "png")
	require.NoError(t, err)
	assert.Equal(t, "a.png", got.Name)

	got.Name = "also-changed.png"
	again, err := repo.GetFile(ctx, f.Hash, "png")
	require.NoError(t, err)
	assert.Equal(t, "a.png", again.Name)
}

func TestMemoryRepository_ConcurrentIDInsert(t *testing.T) {
	ctx := context.Background()
	repo := New()
	hash := fmt.Sprintf("%064x", 7)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
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
