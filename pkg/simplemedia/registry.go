package simplemedia

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// MaxIDAttempts bounds how many candidate ids are tried before falling back
// to the raw hash.
const MaxIDAttempts = 5

// passThrough uses the hash itself as the id.
type passThrough struct{}

func (passThrough) Generate(hash string) string { return hash }

// Registry maps opaque ids to hashes. Generators may collide; the registry
// guarantees that one hash has one id and one id has one hash.
type Registry struct {
	repo      Repository
	generator IDGenerator
}

// NewRegistry creates a registry. A nil generator uses the hash as the id.
func NewRegistry(repo Repository, generator IDGenerator) *Registry {
	if generator == nil {
		generator = passThrough{}
	}
	return &Registry{repo: repo, generator: generator}
}

// ToID returns the id of hash, allocating and persisting one if needed.
func (r *Registry) ToID(ctx context.Context, hash, extension string) (string, error) {
	existing, err := r.repo.GetIDMappingByHash(ctx, hash)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("lookup id for %s: %w", hash, err)
	}

	id, err := r.uniqueID(ctx, hash)
	if err != nil {
		return "", err
	}

	err = r.repo.CreateIDMapping(ctx, &IDMapping{ID: id, Hash: hash, Extension: extension})
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return "", fmt.Errorf("register id for %s: %w", hash, err)
	}

	// Either another request registered this hash first, or the candidate
	// was taken between the check and the insert.
	if existing, err := r.repo.GetIDMappingByHash(ctx, hash); err == nil {
		return existing.ID, nil
	}
	if id == hash {
		return "", fmt.Errorf("register id for %s: %w", hash, ErrDuplicate)
	}
	slog.Warn("ID generation collision on insert, using hash", "hash", hash, "id", id)
	if err := r.repo.CreateIDMapping(ctx, &IDMapping{ID: hash, Hash: hash, Extension: extension}); err != nil {
		if existing, lookupErr := r.repo.GetIDMappingByHash(ctx, hash); lookupErr == nil {
			return existing.ID, nil
		}
		return "", fmt.Errorf("register id for %s: %w", hash, err)
	}
	return hash, nil
}

func (r *Registry) uniqueID(ctx context.Context, hash string) (string, error) {
	for attempt := 0; attempt < MaxIDAttempts; attempt++ {
		id := r.generator.Generate(hash)
		_, err := r.repo.GetIDMapping(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("check id %s: %w", id, err)
		}
		slog.Warn("ID generation collision detected", "id", id, "attempt", attempt+1)
	}
	return hash, nil
}

// Resolve returns the mapping of id, or ErrNotFound.
func (r *Registry) Resolve(ctx context.Context, id string) (*IDMapping, error) {
	m, err := r.repo.GetIDMapping(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &MediaError{Op: "resolve", Path: id, Err: ErrNotFound}
		}
		return nil, fmt.Errorf("resolve %s: %w", id, err)
	}
	return m, nil
}
