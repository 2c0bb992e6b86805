package simplemedia

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrNotFound indicates an unknown id, a missing blob or a missing record
	ErrNotFound = errors.New("file not found")

	// ErrForbidden indicates a missing or wrong deletion key
	ErrForbidden = errors.New("missing or wrong deletions key")

	// ErrUpstreamFetch indicates the remote GET of a fetched URL failed
	ErrUpstreamFetch = errors.New("remote fetch failed")

	// ErrTransformFailed indicates an external tool failed to produce a derivative
	ErrTransformFailed = errors.New("transform failed")

	// ErrInvalidPath indicates a malformed blob name, id or transform parameter
	ErrInvalidPath = errors.New("invalid path")

	// ErrDuplicate is returned by repositories on a uniqueness violation
	ErrDuplicate = errors.New("duplicate entry")

	// ErrStoreInconsistency indicates a blob without its record or the reverse
	ErrStoreInconsistency = errors.New("file's database record doesn't exist")

	// ErrUnsupported is returned by transformers that cannot handle an operation
	ErrUnsupported = errors.New("operation not supported by transformer")
)

// MediaError represents an error related to an operation on a path
type MediaError struct {
	Op   string
	Path string
	Err  error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// TransformError carries the failure of one external tool invocation.
// It unwraps to both ErrTransformFailed and the tool's error.
type TransformError struct {
	Op     string
	Source string
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("%s of %s failed: %v", e.Op, e.Source, e.Err)
}

func (e *TransformError) Unwrap() []error {
	return []error{ErrTransformFailed, e.Err}
}
