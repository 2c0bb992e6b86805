package simplemedia

import (
	"context"
	"io"
	"os"
)

// ContentStore defines the interface for content-addressed blob storage
type ContentStore interface {
	// Exists reports whether the blob is stored
	Exists(ctx context.Context, blob Blob) (bool, error)

	// Write moves the staged file at tempPath into place if the blob is
	// absent. If it is already present the staged file is discarded and
	// created is false; that is a success, not an error.
	Write(ctx context.Context, tempPath string, blob Blob) (created bool, err error)

	// Path returns the canonical local location of the blob
	Path(ctx context.Context, blob Blob) (string, error)

	// Delete removes the blob. A missing blob is not an error.
	Delete(ctx context.Context, blob Blob) error

	// TempFile creates a staging file from which Write can install atomically
	TempFile(ctx context.Context) (*os.File, error)
}

// Repository defines the interface for metadata persistence
type Repository interface {
	// File records
	CreateFile(ctx context.Context, file *FileRecord) error
	GetFile(ctx context.Context, hash, extension string) (*FileRecord, error)
	GetFileByURL(ctx context.Context, url string) (*FileRecord, error)
	ListFiles(ctx context.Context, params ListFilesParams) ([]*FileRecord, error)
	CountFiles(ctx context.Context) (int, error)
	DeleteFiles(ctx context.Context, hash, extension string) (int, error)

	// Id registry
	CreateIDMapping(ctx context.Context, mapping *IDMapping) error
	GetIDMapping(ctx context.Context, id string) (*IDMapping, error)
	GetIDMappingByHash(ctx context.Context, hash string) (*IDMapping, error)
	DeleteIDMapping(ctx context.Context, hash string) error

	// Derived artifact index
	CreateDerivedArtifact(ctx context.Context, artifact *DerivedArtifact) error
	ListDerivedArtifacts(ctx context.Context, sourcePath string) ([]*DerivedArtifact, error)
	DeleteDerivedArtifacts(ctx context.Context, sourcePath string) error

	Close() error
}

// IDGenerator produces candidate opaque ids. Candidates need not be unique;
// the registry enforces uniqueness.
type IDGenerator interface {
	Generate(hash string) string
}

// Runner admits tasks into a bounded worker pool
type Runner interface {
	Do(ctx context.Context, task func(ctx context.Context) error) error
}

// Transformer wraps the external image and video tools. Every method writes
// exactly one output file at dst.
type Transformer interface {
	// Thumbnail auto-orients src and fits it into a size x size box
	Thumbnail(ctx context.Context, src, dst string, size, quality int) error

	// Resize auto-orients src, strips profiles and shrinks it to fit
	// width x height. With deform the output has exactly those dimensions.
	Resize(ctx context.Context, src, dst string, width, height int, deform bool) error

	// ExtractFrame writes a single still of the video at offset seconds
	ExtractFrame(ctx context.Context, src, dst string, offset float64) error

	// Transcode converts a video to format with the given output height
	Transcode(ctx context.Context, src, dst string, format VideoFormat, height int) error
}

// FetchSink receives a remote body while it is being ingested.
// Start is called once before the first Write.
type FetchSink interface {
	Start(statusCode int, contentType string)
	io.Writer
}

// IngestRequest is an upload handed over by the transport layer
type IngestRequest struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// FetchResult is the outcome of a remote fetch. Cached is true when the URL
// was already known and no network call was made; in that case the sink was
// not written to.
type FetchResult struct {
	File   *FileRecord
	Cached bool
}
