package transform

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Native resizes JPEG, PNG and GIF images in process. It needs no external
// tools but does not auto-orient and cannot handle video.
type Native struct{}

func NewNative() *Native {
	return &Native{}
}

func (n *Native) Thumbnail(ctx context.Context, src, dst string, size, quality int) error {
	img, err := decode(src)
	if err != nil {
		return err
	}
	b := img.Bounds()
	w, h := cover(b.Dx(), b.Dy(), size)
	scaled := resize.Resize(uint(w), uint(h), img, resize.Lanczos3)
	return encode(dst, centerCrop(scaled, size, size), quality)
}

func (n *Native) Resize(ctx context.Context, src, dst string, width, height int, deform bool) error {
	img, err := decode(src)
	if err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() > width || b.Dy() > height {
		if deform {
			img = resize.Resize(uint(width), uint(height), img, resize.Lanczos3)
		} else {
			img = resize.Thumbnail(uint(width), uint(height), img, resize.Lanczos3)
		}
	}
	return encode(dst, img, jpeg.DefaultQuality)
}

func (n *Native) ExtractFrame(ctx context.Context, src, dst string, offset float64) error {
	return fmt.Errorf("%w: frame extraction", simplemedia.ErrUnsupported)
}

func (n *Native) Transcode(ctx context.Context, src, dst string, format simplemedia.VideoFormat, height int) error {
	return fmt.Errorf("%w: transcoding", simplemedia.ErrUnsupported)
}

// cover scales w x h to the smallest size that fills a size x size box
// keeping the aspect ratio.
func cover(w, h, size int) (int, int) {
	if w <= 0 || h <= 0 {
		return size, size
	}
	if w > h {
		return max(size, (w*size+h-1)/h), size
	}
	return size, max(size, (h*size+w-1)/w)
}

// centerCrop cuts the centered w x h region out of img.
func centerCrop(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), img, image.Pt(x0, y0), draw.Src)
	return out
}

func decode(src string) (image.Image, error) {
	file, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", simplemedia.ErrUnsupported, filepath.Base(src), err)
	}
	return img, nil
}

func encode(dst string, img image.Image, quality int) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(dst), "."))

	file, err := os.Create(dst)
	if err != nil {
		return err
	}

	switch ext {
	case "jpg", "jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: quality})
	case "png":
		err = png.Encode(file, img)
	case "gif":
		err = gif.Encode(file, img, nil)
	default:
		err = fmt.Errorf("%w: encode %q", simplemedia.ErrUnsupported, ext)
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	return err
}
