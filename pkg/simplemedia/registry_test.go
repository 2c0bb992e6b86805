package simplemedia_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/idgen"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
)

func TestRegistry_ToIDIsStable(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	reg := simplemedia.NewRegistry(repo, idgen.SillyIDGenerator{})
	hash := hashOf("stable")

	first, err := reg.ToID(ctx, hash, "png")
	require.NoError(t, err)
	second, err := reg.ToID(ctx, hash, "png")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	m, err := reg.Resolve(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, hash, m.Hash)
	assert.Equal(t, "png", m.Extension)
}

func TestRegistry_RetriesCollisions(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	require.NoError(t, repo.CreateIDMapping(ctx, &simplemedia.IDMapping{ID: "Taken", Hash: hashOf("other"), Extension: "jpg"}))

	gen := &sequenceGenerator{ids: []string{"Taken", "Taken", "Free"}}
	reg := simplemedia.NewRegistry(repo, gen)

	id, err := reg.ToID(ctx, hashOf("mine"), "png")
	require.NoError(t, err)
	assert.Equal(t, "Free", id)
	assert.Equal(t, 3, gen.calls)
}

func TestRegistry_FallsBackToHashAfterFiveCollisions(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	require.NoError(t, repo.CreateIDMapping(ctx, &simplemedia.IDMapping{ID: "Taken", Hash: hashOf("other"), Extension: "jpg"}))

	gen := &sequenceGenerator{ids: []string{"Taken"}}
	reg := simplemedia.NewRegistry(repo, gen)
	hash := hashOf("mine")

	id, err := reg.ToID(ctx, hash, "png")
	require.NoError(t, err)
	assert.Equal(t, hash, id)
	assert.Equal(t, simplemedia.MaxIDAttempts, gen.calls)

	m, err := reg.Resolve(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, hash, m.Hash)
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	reg := simplemedia.NewRegistry(memory.New(), nil)
	_, err := reg.Resolve(context.Background(), "NoSuchId")
	assert.ErrorIs(t, err, simplemedia.ErrNotFound)
}

func TestRegistry_NilGeneratorUsesHash(t *testing.T) {
	reg := simplemedia.NewRegistry(memory.New(), nil)
	hash := hashOf("plain")
	id, err := reg.ToID(context.Background(), hash, "txt")
	require.NoError(t, err)
	assert.Equal(t, hash, id)
}

func TestRegistry_ConcurrentToIDAgrees(t *testing.T) {
	ctx := context.Background()
	gen, err := idgen.New(idgen.StrategyHumanReadable)
	require.NoError(t, err)
	reg := simplemedia.NewRegistry(memory.New(), gen)
	hash := hashOf("contended")

	const workers = 32
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := reg.ToID(ctx, hash, "png")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestRegistry_DistinctHashesGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	// Every candidate collides after the first, so later hashes fall back.
	gen := &sequenceGenerator{ids: []string{"Same"}}
	reg := simplemedia.NewRegistry(memory.New(), gen)

	a, err := reg.ToID(ctx, hashOf("a"), "png")
	require.NoError(t, err)
	b, err := reg.ToID(ctx, hashOf("b"), "png")
	require.NoError(t, err)

	assert.Equal(t, "Same", a)
	assert.Equal(t, hashOf("b"), b)
}
