package simplemedia_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/pool"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	"github.com/tendant/simple-media/pkg/simplemedia/storage/fs"
)

type transformCall struct {
	Op  string
	Src string
	Dst string
}

// fakeTransformer writes a small marker file instead of running tools.
type fakeTransformer struct {
	mu    sync.Mutex
	calls []transformCall
	fail  map[string]error // op -> error; output is still partially written
}

func (f *fakeTransformer) record(op, src, dst string) error {
	f.mu.Lock()
	f.calls = append(f.calls, transformCall{Op: op, Src: src, Dst: dst})
	err := f.fail[op]
	f.mu.Unlock()

	if werr := os.WriteFile(dst, []byte(op+":"+filepath.Base(src)), 0o644); werr != nil {
		return werr
	}
	return err
}

func (f *fakeTransformer) Thumbnail(ctx context.Context, src, dst string, size, quality int) error {
	return f.record("thumbnail", src, dst)
}

func (f *fakeTransformer) Resize(ctx context.Context, src, dst string, width, height int, deform bool) error {
	return f.record("resize", src, dst)
}

func (f *fakeTransformer) ExtractFrame(ctx context.Context, src, dst string, offset float64) error {
	return f.record("frame", src, dst)
}

func (f *fakeTransformer) Transcode(ctx context.Context, src, dst string, format simplemedia.VideoFormat, height int) error {
	return f.record("transcode", src, dst)
}

func (f *fakeTransformer) Calls() []transformCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transformCall(nil), f.calls...)
}

// sequenceGenerator hands out ids from a fixed list, repeating the last one.
type sequenceGenerator struct {
	mu    sync.Mutex
	ids   []string
	calls int
}

func (g *sequenceGenerator) Generate(hash string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	if i >= len(g.ids) {
		i = len(g.ids) - 1
	}
	return g.ids[i]
}

type testEnv struct {
	svc         simplemedia.Service
	repo        *memory.Repository
	store       *fs.Backend
	transformer *fakeTransformer
	derivedDir  string
}

func newTestEnv(t *testing.T, opts ...simplemedia.Option) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := fs.New(fs.Config{BaseDir: filepath.Join(dir, "uploads")})
	require.NoError(t, err)

	env := &testEnv{
		repo:        memory.New(),
		store:       store,
		transformer: &fakeTransformer{fail: map[string]error{}},
		derivedDir:  filepath.Join(dir, "derived"),
	}

	options := []simplemedia.Option{
		simplemedia.WithRepository(env.repo),
		simplemedia.WithContentStore(store),
		simplemedia.WithTransformer(env.transformer),
		simplemedia.WithWorkerPools(pool.New("image", 4, nil), pool.New("video", 1, nil)),
		simplemedia.WithDerivedDir(env.derivedDir),
	}
	options = append(options, opts...)

	env.svc, err = simplemedia.New(options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.svc.Close() })
	return env
}

func (e *testEnv) upload(t *testing.T, name, body string) *simplemedia.FileStatus {
	t.Helper()
	status, err := e.svc.Ingest(context.Background(), simplemedia.IngestRequest{
		Name: name,
		Body: strings.NewReader(body),
	})
	require.NoError(t, err)
	return status
}

func hashOf(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

func derivedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
