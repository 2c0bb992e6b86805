// Package transform wraps the image and video tools behind
// simplemedia.Transformer.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// CommandRunner runs an external program to completion.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// RunCommand runs name with args and reports stderr on failure.
func RunCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		if msg == "" {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return nil
}

// Exec drives GraphicsMagick for images and ffmpeg for video.
type Exec struct {
	GMPath     string
	FFmpegPath string
	Run        CommandRunner
}

// NewExec returns an Exec using the given binaries; empty paths use "gm"
// and "ffmpeg" from PATH.
func NewExec(gmPath, ffmpegPath string) *Exec {
	if gmPath == "" {
		gmPath = "gm"
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Exec{GMPath: gmPath, FFmpegPath: ffmpegPath, Run: RunCommand}
}

func (e *Exec) Thumbnail(ctx context.Context, src, dst string, size, quality int) error {
	// "^" fills the box; the extent crops the overflow around the center.
	box := fmt.Sprintf("%dx%d", size, size)
	return e.Run(ctx, e.GMPath, "convert", src,
		"-auto-orient",
		"-thumbnail", box+"^",
		"-gravity", "center",
		"-extent", box,
		"+profile", "*",
		"-quality", strconv.Itoa(quality),
		dst)
}

func (e *Exec) Resize(ctx context.Context, src, dst string, width, height int, deform bool) error {
	// ">" only shrinks; "!" ignores the aspect ratio.
	geometry := fmt.Sprintf("%dx%d>", width, height)
	if deform {
		geometry = fmt.Sprintf("%dx%d!>", width, height)
	}
	return e.Run(ctx, e.GMPath, "convert", src,
		"-auto-orient",
		"-resize", geometry,
		"+profile", "*",
		dst)
}

func (e *Exec) ExtractFrame(ctx context.Context, src, dst string, offset float64) error {
	return e.Run(ctx, e.FFmpegPath, "-y",
		"-ss", strconv.FormatFloat(offset, 'f', -1, 64),
		"-i", src,
		"-frames:v", "1",
		dst)
}

func (e *Exec) Transcode(ctx context.Context, src, dst string, format simplemedia.VideoFormat, height int) error {
	args := []string{"-y", "-i", src, "-vf", fmt.Sprintf("scale=-2:%d", height)}
	switch format {
	case simplemedia.FormatMP4:
		args = append(args, "-vcodec", "libx264", "-acodec", "aac", "-f", "mp4")
	case simplemedia.FormatWebM:
		args = append(args, "-vcodec", "libvpx", "-acodec", "libvorbis", "-f", "webm")
	case simplemedia.FormatWebP:
		args = append(args, "-vcodec", "libwebp_anim",
			"-preset", "default",
			"-loop", "0",
			"-an",
			"-vsync", "0",
			"-qscale", "100",
			"-f", "webp")
	default:
		return fmt.Errorf("%w: format %q", simplemedia.ErrUnsupported, format)
	}
	args = append(args, dst)
	return e.Run(ctx, e.FFmpegPath, args...)
}
