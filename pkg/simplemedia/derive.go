package simplemedia

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Derivatives live in a local directory and are looked up by name. Two
// requests missing the same name both produce it; each writes to its own
// temporary file and the last rename wins with identical bytes.

func (s *service) Thumbnail(ctx context.Context, blob Blob) (string, error) {
	if err := blob.Validate(); err != nil {
		return "", err
	}
	source := blob.Name()
	video := IsVideoExtension(blob.Extension)
	name := ThumbnailName(source, video)
	if dst, ok := s.cached(name); ok {
		return dst, nil
	}

	src, err := s.OriginalPath(ctx, blob)
	if err != nil {
		return "", err
	}

	if video {
		frame := FrameName(source)
		framePath, ok := s.cached(frame)
		if !ok {
			framePath, err = s.produce(ctx, s.videoPool, "frame", source, frame, func(ctx context.Context, out string) error {
				return s.transformer.ExtractFrame(ctx, src, out, frameOffset)
			})
			if err != nil {
				slog.Error("Failed to extract video frame", "source", source, "error", err)
				return "", err
			}
		}
		src = framePath
	}

	dst, err := s.produce(ctx, s.imagePool, "thumbnail", source, name, func(ctx context.Context, out string) error {
		return s.transformer.Thumbnail(ctx, src, out, ThumbnailSize, ThumbnailQuality)
	})
	if err != nil {
		slog.Error("Failed to build thumbnail", "source", source, "error", err)
		return "", err
	}
	return dst, nil
}

func (s *service) Resize(ctx context.Context, blob Blob, width, height int, deform bool) (string, error) {
	if err := blob.Validate(); err != nil {
		return "", err
	}
	width = Closest(s.allowedSizes, width)
	height = Closest(s.allowedSizes, height)
	if width <= 0 || height <= 0 {
		return "", fmt.Errorf("%w: size %dx%d", ErrInvalidPath, width, height)
	}

	source := blob.Name()
	name := ResizeName(source, width, height, deform)
	if dst, ok := s.cached(name); ok {
		return dst, nil
	}

	src, err := s.OriginalPath(ctx, blob)
	if err != nil {
		return "", err
	}

	dst, err := s.produce(ctx, s.imagePool, "resize", source, name, func(ctx context.Context, out string) error {
		return s.transformer.Resize(ctx, src, out, width, height, deform)
	})
	if err != nil {
		slog.Error("Failed to resize", "source", source, "width", width, "height", height, "deform", deform, "error", err)
		return "", err
	}
	return dst, nil
}

func (s *service) Convert(ctx context.Context, blob Blob, format VideoFormat, size int) (string, error) {
	if err := blob.Validate(); err != nil {
		return "", err
	}
	if _, err := ParseVideoFormat(string(format)); err != nil {
		return "", err
	}
	size = Closest(s.allowedVideoSizes, size)
	if size <= 0 {
		return "", fmt.Errorf("%w: size %d", ErrInvalidPath, size)
	}

	source := blob.Name()
	name := ConvertName(source, format, size)
	if dst, ok := s.cached(name); ok {
		return dst, nil
	}

	src, err := s.OriginalPath(ctx, blob)
	if err != nil {
		return "", err
	}

	dst, err := s.produce(ctx, s.videoPool, "convert", source, name, func(ctx context.Context, out string) error {
		return s.transformer.Transcode(ctx, src, out, format, size)
	})
	if err != nil {
		slog.Error("Failed to convert", "source", source, "format", format, "size", size, "error", err)
		return "", err
	}
	return dst, nil
}

// OriginalPath returns a local path of the stored blob, or ErrNotFound.
func (s *service) OriginalPath(ctx context.Context, blob Blob) (string, error) {
	if err := blob.Validate(); err != nil {
		return "", err
	}
	ok, err := s.store.Exists(ctx, blob)
	if err != nil {
		return "", fmt.Errorf("check %s: %w", blob, err)
	}
	if !ok {
		return "", &MediaError{Op: "open", Path: blob.Name(), Err: ErrNotFound}
	}
	return s.store.Path(ctx, blob)
}

func (s *service) cached(name string) (string, bool) {
	p := filepath.Join(s.derivedDir, name)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return p, false
	}
	return p, true
}

// produce runs fn in the given pool with a temporary output path, then
// renames the output to name and records it against source. The job is
// detached from the request: a client going away does not cancel it.
func (s *service) produce(ctx context.Context, runner Runner, op, source, name string, fn func(ctx context.Context, out string) error) (string, error) {
	jobCtx := context.WithoutCancel(ctx)
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, s.jobTimeout)
		defer cancel()
	}

	dst := filepath.Join(s.derivedDir, name)
	tmp := filepath.Join(s.derivedDir, ".tmp-"+uuid.NewString()+"-"+name)

	err := runner.Do(jobCtx, func(ctx context.Context) error {
		return fn(ctx, tmp)
	})
	if err == nil {
		err = os.Rename(tmp, dst)
	}
	if err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("Failed to remove partial output", "path", tmp, "error", rmErr)
		}
		return "", &TransformError{Op: op, Source: source, Err: err}
	}

	artifact := &DerivedArtifact{DerivedPath: name, SourcePath: source, CreatedAt: time.Now().UTC()}
	if err := s.repo.CreateDerivedArtifact(jobCtx, artifact); err != nil {
		slog.Warn("Failed to register derived artifact", "derived", name, "source", source, "error", err)
	}
	return dst, nil
}
