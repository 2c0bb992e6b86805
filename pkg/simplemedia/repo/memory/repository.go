package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Repository implements simplemedia.Repository using in-memory storage
type Repository struct {
	mu sync.RWMutex

	files     []*simplemedia.FileRecord // insertion order
	ids       map[string]*simplemedia.IDMapping
	idsByHash map[string]string // hash -> id
	derived   map[string]*simplemedia.DerivedArtifact
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		ids:       make(map[string]*simplemedia.IDMapping),
		idsByHash: make(map[string]string),
		derived:   make(map[string]*simplemedia.DerivedArtifact),
	}
}

// File operations

func (r *Repository) CreateFile(ctx context.Context, file *simplemedia.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if file.URL != "" {
		for _, f := range r.files {
			if f.URL == file.URL {
				return simplemedia.ErrDuplicate
			}
		}
	}

	// Create a copy to avoid external modifications
	fileCopy := *file
	r.files = append(r.files, &fileCopy)
	return nil
}

func (r *Repository) GetFile(ctx context.Context, hash, extension string) (*simplemedia.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.files {
		if f.Hash == hash && f.Extension == extension {
			fileCopy := *f
			return &fileCopy, nil
		}
	}
	return nil, simplemedia.ErrNotFound
}

func (r *Repository) GetFileByURL(ctx context.Context, url string) (*simplemedia.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if url == "" {
		return nil, simplemedia.ErrNotFound
	}
	for _, f := range r.files {
		if f.URL == url {
			fileCopy := *f
			return &fileCopy, nil
		}
	}
	return nil, simplemedia.ErrNotFound
}

func (r *Repository) ListFiles(ctx context.Context, params simplemedia.ListFilesParams) ([]*simplemedia.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*simplemedia.FileRecord, 0, len(r.files))
	for _, f := range r.files {
		fileCopy := *f
		result = append(result, &fileCopy)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if params.Ascending {
			return result[i].ModTime.Before(result[j].ModTime)
		}
		return result[i].ModTime.After(result[j].ModTime)
	})

	if params.Offset > 0 {
		if params.Offset >= len(result) {
			return []*simplemedia.FileRecord{}, nil
		}
		result = result[params.Offset:]
	}
	if params.Limit > 0 && params.Limit < len(result) {
		result = result[:params.Limit]
	}
	return result, nil
}

func (r *Repository) CountFiles(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files), nil
}

func (r *Repository) DeleteFiles(ctx context.Context, hash, extension string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.files[:0]
	removed := 0
	for _, f := range r.files {
		if f.Hash == hash && f.Extension == extension {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	for i := len(kept); i < len(r.files); i++ {
		r.files[i] = nil
	}
	r.files = kept
	return removed, nil
}

// Id mapping operations

func (r *Repository) CreateIDMapping(ctx context.Context, mapping *simplemedia.IDMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ids[mapping.ID]; exists {
		return simplemedia.ErrDuplicate
	}
	if _, exists := r.idsByHash[mapping.Hash]; exists {
		return simplemedia.ErrDuplicate
	}

	mappingCopy := *mapping
	r.ids[mapping.ID] = &mappingCopy
	r.idsByHash[mapping.Hash] = mapping.ID
	return nil
}

func (r *Repository) GetIDMapping(ctx context.Context, id string) (*simplemedia.IDMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.ids[id]
	if !exists {
		return nil, simplemedia.ErrNotFound
	}
	mappingCopy := *m
	return &mappingCopy, nil
}

func (r *Repository) GetIDMappingByHash(ctx context.Context, hash string) (*simplemedia.IDMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.idsByHash[hash]
	if !exists {
		return nil, simplemedia.ErrNotFound
	}
	mappingCopy := *r.ids[id]
	return &mappingCopy, nil
}

func (r *Repository) DeleteIDMapping(ctx context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.idsByHash[hash]; exists {
		delete(r.ids, id)
		delete(r.idsByHash, hash)
	}
	return nil
}

// Derived artifact operations

func (r *Repository) CreateDerivedArtifact(ctx context.Context, artifact *simplemedia.DerivedArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.derived[artifact.DerivedPath]; exists {
		return nil
	}
	artifactCopy := *artifact
	r.derived[artifact.DerivedPath] = &artifactCopy
	return nil
}

func (r *Repository) ListDerivedArtifacts(ctx context.Context, sourcePath string) ([]*simplemedia.DerivedArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplemedia.DerivedArtifact
	for _, a := range r.derived {
		if a.SourcePath == sourcePath {
			artifactCopy := *a
			result = append(result, &artifactCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DerivedPath < result[j].DerivedPath
	})
	return result, nil
}

func (r *Repository) DeleteDerivedArtifacts(ctx context.Context, sourcePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for path, a := range r.derived {
		if a.SourcePath == sourcePath {
			delete(r.derived, path)
		}
	}
	return nil
}

func (r *Repository) Close() error {
	return nil
}
