package simplemedia

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultPageSize = 10
	MinPageSize     = 2

	reconcileBatchSize = 100
)

// service implements the Service interface
type service struct {
	repo        Repository
	store       ContentStore
	registry    *Registry
	generator   IDGenerator
	imagePool   Runner
	videoPool   Runner
	transformer Transformer
	derivedDir  string

	allowedSizes      []int
	allowedVideoSizes []int
	deletionKey       string

	httpClient *http.Client
	userAgent  string
	auths      map[string]string

	fetchTimeout time.Duration
	jobTimeout   time.Duration

	closers []io.Closer
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the metadata repository
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repo = repo
	}
}

// WithContentStore sets the blob store
func WithContentStore(store ContentStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithIDGenerator sets the opaque id strategy
func WithIDGenerator(generator IDGenerator) Option {
	return func(s *service) {
		s.generator = generator
	}
}

// WithWorkerPools sets the image and video admission queues
func WithWorkerPools(image, video Runner) Option {
	return func(s *service) {
		s.imagePool = image
		s.videoPool = video
	}
}

// WithTransformer sets the image and video tool wrapper
func WithTransformer(t Transformer) Option {
	return func(s *service) {
		s.transformer = t
	}
}

// WithDerivedDir sets the local directory holding derivatives
func WithDerivedDir(dir string) Option {
	return func(s *service) {
		s.derivedDir = dir
	}
}

// WithAllowedSizes restricts resize dimensions. Empty means unrestricted.
func WithAllowedSizes(sizes []int) Option {
	return func(s *service) {
		s.allowedSizes = sizes
	}
}

// WithAllowedVideoSizes restricts transcode heights. Empty means unrestricted.
func WithAllowedVideoSizes(sizes []int) Option {
	return func(s *service) {
		s.allowedVideoSizes = sizes
	}
}

// WithDeletionKey sets the shared secret required by Remove. Empty disables the check.
func WithDeletionKey(key string) Option {
	return func(s *service) {
		s.deletionKey = key
	}
}

// WithHTTPClient sets the client used for remote fetches
func WithHTTPClient(client *http.Client) Option {
	return func(s *service) {
		s.httpClient = client
	}
}

// WithUserAgent sets the User-Agent of remote fetches
func WithUserAgent(ua string) Option {
	return func(s *service) {
		s.userAgent = ua
	}
}

// WithAuths sets basic credentials ("user:pass") per remote hostname
func WithAuths(auths map[string]string) Option {
	return func(s *service) {
		s.auths = auths
	}
}

// WithFetchTimeout bounds remote downloads. Zero means unbounded.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *service) {
		s.fetchTimeout = d
	}
}

// WithJobTimeout bounds each transform job. Zero means unbounded.
func WithJobTimeout(d time.Duration) Option {
	return func(s *service) {
		s.jobTimeout = d
	}
}

// WithCloser registers a resource released by Close
func WithCloser(c io.Closer) Option {
	return func(s *service) {
		s.closers = append(s.closers, c)
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		userAgent: DefaultUserAgent,
		auths:     map[string]string{},
	}

	for _, option := range options {
		option(s)
	}

	if s.repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.store == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if s.transformer == nil {
		return nil, fmt.Errorf("transformer is required")
	}
	if s.imagePool == nil || s.videoPool == nil {
		return nil, fmt.Errorf("worker pools are required")
	}
	if s.derivedDir == "" {
		return nil, fmt.Errorf("derived directory is required")
	}
	if err := os.MkdirAll(s.derivedDir, 0o755); err != nil {
		return nil, fmt.Errorf("create derived directory: %w", err)
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{}
	}
	s.registry = NewRegistry(s.repo, s.generator)

	return s, nil
}

func (s *service) Ingest(ctx context.Context, req IngestRequest) (*FileStatus, error) {
	if req.Body == nil {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidPath)
	}

	tmp, err := s.store.TempFile(ctx)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	hasher := sha256.New()
	size, copyErr := io.Copy(io.MultiWriter(tmp, hasher), req.Body)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		removeTemp(tmpPath)
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	blob := Blob{
		Hash:      hex.EncodeToString(hasher.Sum(nil)),
		Extension: uploadExtension(req.Name, req.ContentType),
	}

	created, err := s.store.Write(ctx, tmpPath, blob)
	if err != nil {
		removeTemp(tmpPath)
		return nil, fmt.Errorf("install %s: %w", blob, err)
	}

	if !created {
		existing, err := s.repo.GetFile(ctx, blob.Hash, blob.Extension)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, &MediaError{Op: "upload", Path: blob.Name(), Err: ErrStoreInconsistency}
			}
			return nil, fmt.Errorf("lookup %s: %w", blob, err)
		}
		return &FileStatus{FileRecord: existing, Status: StatusExists}, nil
	}

	id, err := s.registry.ToID(ctx, blob.Hash, blob.Extension)
	if err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = "untitled"
	}
	contentType := req.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = TypeForExtension(blob.Extension)
	}
	record := &FileRecord{
		Name:      filepath.Base(name),
		ID:        id,
		Size:      size,
		Hash:      blob.Hash,
		Extension: blob.Extension,
		Type:      contentType,
		ModTime:   time.Now().UTC(),
	}
	if err := s.repo.CreateFile(ctx, record); err != nil {
		return nil, fmt.Errorf("record %s: %w", blob, err)
	}

	slog.Info("Stored upload", "name", record.Name, "blob", blob.Name(), "id", id, "size", size)
	return &FileStatus{FileRecord: record, Status: StatusOK}, nil
}

// Resolve turns a "{hash}.{ext}" name or an opaque id into a blob.
func (s *service) Resolve(ctx context.Context, ref string) (Blob, error) {
	if IsBlobName(ref) {
		return ParseBlob(ref)
	}
	if !IsID(ref) || IsRemote(ref) {
		return Blob{}, fmt.Errorf("%w: %q", ErrInvalidPath, ref)
	}
	m, err := s.registry.Resolve(ctx, ref)
	if err != nil {
		return Blob{}, err
	}
	return m.Blob(), nil
}

func (s *service) ToID(ctx context.Context, blob Blob) (string, error) {
	if err := blob.Validate(); err != nil {
		return "", err
	}
	return s.registry.ToID(ctx, blob.Hash, blob.Extension)
}

func (s *service) Details(ctx context.Context, blob Blob) (*FileRecord, error) {
	if err := blob.Validate(); err != nil {
		return nil, err
	}
	f, err := s.repo.GetFile(ctx, blob.Hash, blob.Extension)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &MediaError{Op: "details", Path: blob.Name(), Err: ErrNotFound}
		}
		return nil, err
	}
	return f, nil
}

// ListFiles returns every record, newest first.
func (s *service) ListFiles(ctx context.Context) ([]*FileRecord, error) {
	return s.repo.ListFiles(ctx, ListFilesParams{})
}

// PaginateFiles returns one page of records. A negative page is the newest
// page; otherwise pages count from the oldest record.
func (s *service) PaginateFiles(ctx context.Context, page, pageSize int) (*FilePage, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < MinPageSize {
		pageSize = MinPageSize
	}

	params := ListFilesParams{Limit: pageSize}
	if page >= 0 {
		params.Ascending = true
		params.Offset = page * pageSize
	}

	files, err := s.repo.ListFiles(ctx, params)
	if err != nil {
		return nil, err
	}
	count, err := s.repo.CountFiles(ctx)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []*FileRecord{}
	}
	return &FilePage{Files: files, Count: count}, nil
}

// Remove deletes a blob, its derivatives and all its records. The key must
// match the deletion key when one is configured; nothing is touched otherwise.
func (s *service) Remove(ctx context.Context, blob Blob, key string) (int, error) {
	if s.deletionKey != "" && subtle.ConstantTimeCompare([]byte(s.deletionKey), []byte(key)) != 1 {
		return 0, &MediaError{Op: "remove", Path: blob.Name(), Err: ErrForbidden}
	}
	if err := blob.Validate(); err != nil {
		return 0, err
	}

	if err := s.store.Delete(ctx, blob); err != nil {
		slog.Warn("Failed to delete blob", "blob", blob.Name(), "error", err)
	}
	if err := s.purgeDerived(ctx, blob); err != nil {
		return 0, err
	}
	if err := s.releaseID(ctx, blob); err != nil {
		return 0, err
	}
	n, err := s.repo.DeleteFiles(ctx, blob.Hash, blob.Extension)
	if err != nil {
		return 0, fmt.Errorf("delete records of %s: %w", blob, err)
	}

	slog.Info("Removed file", "blob", blob.Name(), "records", n)
	return n, nil
}

// releaseID drops the id of blob. The same bytes stored under another
// extension keep the id when the mapping points there.
func (s *service) releaseID(ctx context.Context, blob Blob) error {
	mapping, err := s.repo.GetIDMappingByHash(ctx, blob.Hash)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup id of %s: %w", blob, err)
	}
	if mapping.Extension != blob.Extension {
		return nil
	}
	if err := s.repo.DeleteIDMapping(ctx, blob.Hash); err != nil {
		return fmt.Errorf("delete id of %s: %w", blob, err)
	}
	return nil
}

func (s *service) purgeDerived(ctx context.Context, blob Blob) error {
	source := blob.Name()
	artifacts, err := s.repo.ListDerivedArtifacts(ctx, source)
	if err != nil {
		return fmt.Errorf("list derivatives of %s: %w", source, err)
	}
	for _, a := range artifacts {
		p := filepath.Join(s.derivedDir, filepath.Base(a.DerivedPath))
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to delete derivative", "path", p, "error", err)
		}
	}
	if err := s.repo.DeleteDerivedArtifacts(ctx, source); err != nil {
		return fmt.Errorf("delete derivatives of %s: %w", source, err)
	}
	return nil
}

// Reconcile finds file records whose blob is gone. With repair the orphaned
// records, id mappings and derivatives are removed.
func (s *service) Reconcile(ctx context.Context, repair bool) (*ReconcileReport, error) {
	report := &ReconcileReport{Missing: []Blob{}}
	seen := make(map[Blob]bool)

	for offset := 0; ; offset += reconcileBatchSize {
		batch, err := s.repo.ListFiles(ctx, ListFilesParams{Ascending: true, Offset: offset, Limit: reconcileBatchSize})
		if err != nil {
			return report, fmt.Errorf("list files: %w", err)
		}
		for _, f := range batch {
			report.Checked++
			blob := f.Blob()
			if _, done := seen[blob]; done {
				continue
			}
			ok, err := s.store.Exists(ctx, blob)
			if err != nil {
				return report, fmt.Errorf("check %s: %w", blob, err)
			}
			seen[blob] = !ok
			if !ok {
				report.Missing = append(report.Missing, blob)
			}
		}
		if len(batch) < reconcileBatchSize {
			break
		}
	}

	if !repair {
		return report, nil
	}
	for _, blob := range report.Missing {
		if err := s.purgeDerived(ctx, blob); err != nil {
			return report, err
		}
		if err := s.releaseID(ctx, blob); err != nil {
			return report, err
		}
		n, err := s.repo.DeleteFiles(ctx, blob.Hash, blob.Extension)
		if err != nil {
			return report, fmt.Errorf("delete records of %s: %w", blob, err)
		}
		report.Repaired += n
		slog.Info("Removed orphaned records", "blob", blob.Name(), "records", n)
	}
	return report, nil
}

func (s *service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	errs = append(errs, s.repo.Close())
	return errors.Join(errs...)
}
