package simplemedia

import "context"

// Service is the main interface of the media store
type Service interface {
	// Ingestion
	Ingest(ctx context.Context, req IngestRequest) (*FileStatus, error)
	Fetch(ctx context.Context, rawURL string, sink FetchSink) (*FetchResult, error)

	// Resolution
	Resolve(ctx context.Context, ref string) (Blob, error)
	ToID(ctx context.Context, blob Blob) (string, error)
	OriginalPath(ctx context.Context, blob Blob) (string, error)

	// Derivatives; each returns the local path of the cached artifact
	Thumbnail(ctx context.Context, blob Blob) (string, error)
	Resize(ctx context.Context, blob Blob, width, height int, deform bool) (string, error)
	Convert(ctx context.Context, blob Blob, format VideoFormat, size int) (string, error)

	// Records
	Details(ctx context.Context, blob Blob) (*FileRecord, error)
	ListFiles(ctx context.Context) ([]*FileRecord, error)
	PaginateFiles(ctx context.Context, page, pageSize int) (*FilePage, error)
	Remove(ctx context.Context, blob Blob, key string) (int, error)
	Reconcile(ctx context.Context, repair bool) (*ReconcileReport, error)

	Close() error
}
