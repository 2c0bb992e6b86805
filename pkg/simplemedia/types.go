package simplemedia

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	blobNamePattern = regexp.MustCompile(`^([a-fA-F0-9]{40,64})\.([a-zA-Z0-9]+)$`)
	idPattern       = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)
	remotePattern   = regexp.MustCompile(`^https?:/`)
)

// Blob identifies stored content by hash and extension.
type Blob struct {
	Hash      string `json:"hash"`
	Extension string `json:"extension"`
}

// Name is the physical file name of the blob: {hash}.{extension}.
func (b Blob) Name() string {
	return b.Hash + "." + b.Extension
}

func (b Blob) String() string {
	return b.Name()
}

// Validate reports whether the blob is safe to use as a file name.
func (b Blob) Validate() error {
	if !blobNamePattern.MatchString(b.Name()) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, b.Name())
	}
	return nil
}

// ParseBlob parses a "{hash}.{ext}" name.
func ParseBlob(name string) (Blob, error) {
	m := blobNamePattern.FindStringSubmatch(name)
	if m == nil {
		return Blob{}, fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return Blob{Hash: m[1], Extension: m[2]}, nil
}

// IsBlobName reports whether s looks like "{hash}.{ext}".
func IsBlobName(s string) bool {
	return blobNamePattern.MatchString(s)
}

// IsID reports whether s is syntactically an opaque id.
func IsID(s string) bool {
	return idPattern.MatchString(s)
}

// IsRemote reports whether s is an http(s) URL, including the "http:/host"
// form some mail clients produce.
func IsRemote(s string) bool {
	return remotePattern.MatchString(s)
}

// FileRecord is written once per ingestion of a blob. The JSON names are
// the wire format of the files listing.
type FileRecord struct {
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	Size      int64     `json:"size"`
	Hash      string    `json:"hash"`
	Extension string    `json:"extension"`
	Type      string    `json:"type"`
	URL       string    `json:"url,omitempty"`
	ModTime   time.Time `json:"mtime"`
}

// Blob returns the blob the record points at.
func (f *FileRecord) Blob() Blob {
	return Blob{Hash: f.Hash, Extension: f.Extension}
}

// IDMapping binds an opaque id to a hash. Unique on ID and on Hash.
type IDMapping struct {
	ID        string `json:"id"`
	Hash      string `json:"hash"`
	Extension string `json:"extension"`
}

// Blob returns the blob the id resolves to.
func (m *IDMapping) Blob() Blob {
	return Blob{Hash: m.Hash, Extension: m.Extension}
}

// DerivedArtifact records that DerivedPath (a name inside the derived
// directory) was produced from SourcePath ("{hash}.{ext}").
type DerivedArtifact struct {
	DerivedPath string    `json:"derived_path"`
	SourcePath  string    `json:"source_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ingestion statuses returned alongside a FileRecord.
const (
	StatusOK     = "ok"
	StatusExists = "exists"
)

// FileStatus is a FileRecord annotated with the outcome of an ingestion.
type FileStatus struct {
	*FileRecord
	Status string `json:"status"`
}

// FilePage is one page of the files listing.
type FilePage struct {
	Files []*FileRecord `json:"files"`
	Count int           `json:"count"`
}

// ListFilesParams controls ordering and windowing of the files listing.
// Records are ordered by ModTime; Limit <= 0 means no limit.
type ListFilesParams struct {
	Ascending bool
	Offset    int
	Limit     int
}

// ReconcileReport lists records whose blob is missing.
type ReconcileReport struct {
	Checked  int    `json:"checked"`
	Missing  []Blob `json:"missing"`
	Repaired int    `json:"repaired"`
}

// VideoFormat is a transcode target.
type VideoFormat string

const (
	FormatMP4  VideoFormat = "mp4"
	FormatWebM VideoFormat = "webm"
	FormatWebP VideoFormat = "webp"
)

// ParseVideoFormat validates a transcode target.
func ParseVideoFormat(s string) (VideoFormat, error) {
	switch f := VideoFormat(strings.ToLower(s)); f {
	case FormatMP4, FormatWebM, FormatWebP:
		return f, nil
	}
	return "", fmt.Errorf("%w: unsupported format %q", ErrInvalidPath, s)
}
