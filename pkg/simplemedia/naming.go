package simplemedia

import (
	"fmt"
	"strconv"
)

// Derivative naming. Every name is a pure function of the transform
// parameters and the source name, so the presence of the file is the cache.

const (
	ThumbnailSize    = 128
	ThumbnailQuality = 90
	frameOffset      = 0.1
)

// ThumbnailName is the cached thumbnail of source. Video thumbnails are
// always PNG.
func ThumbnailName(source string, video bool) string {
	if video {
		return "thumbnail-" + source + ".png"
	}
	return "thumbnail-" + source
}

// FrameName is the still extracted from a video before thumbnailing.
func FrameName(source string) string {
	return "ffmpeg-1-" + source + ".png"
}

// ResizeName is the cached resize of source.
func ResizeName(source string, width, height int, deform bool) string {
	if deform {
		return fmt.Sprintf("%dx%d-deform-%s", width, height, source)
	}
	return fmt.Sprintf("%dx%d-%s", width, height, source)
}

// ConvertName is the cached transcode of source.
func ConvertName(source string, format VideoFormat, size int) string {
	return "ffmpeg-" + source + "-" + strconv.Itoa(size) + "." + string(format)
}

// Closest returns the element of sizes nearest to goal. Ties resolve to the
// element encountered first. An empty list leaves goal unchanged.
func Closest(sizes []int, goal int) int {
	if len(sizes) == 0 {
		return goal
	}
	best := sizes[0]
	for _, s := range sizes[1:] {
		if abs(s-goal) < abs(best-goal) {
			best = s
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
