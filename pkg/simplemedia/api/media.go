package api

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Thumbnail serves the 128px thumbnail of a blob, id or remote URL
func (h *Handler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	blob, ok := h.source(w, r)
	if !ok {
		return
	}
	p, err := h.service.Thumbnail(r.Context(), blob)
	if err != nil {
		h.derivativeFailed(w, r, "thumbnail", err)
		return
	}
	h.serveFile(w, r, p)
}

// Resize serves a resized copy that keeps the aspect ratio
func (h *Handler) Resize(w http.ResponseWriter, r *http.Request) {
	h.resize(w, r, false)
}

// ResizeDeform serves a resized copy with exactly the requested dimensions
func (h *Handler) ResizeDeform(w http.ResponseWriter, r *http.Request) {
	h.resize(w, r, true)
}

func (h *Handler) resize(w http.ResponseWriter, r *http.Request, deform bool) {
	width, errW := strconv.Atoi(chi.URLParam(r, "width"))
	height, errH := strconv.Atoi(chi.URLParam(r, "height"))
	if errW != nil || errH != nil {
		http.Error(w, "Invalid size", http.StatusBadRequest)
		return
	}
	blob, ok := h.source(w, r)
	if !ok {
		return
	}
	p, err := h.service.Resize(r.Context(), blob, width, height, deform)
	if err != nil {
		h.derivativeFailed(w, r, "resize", err)
		return
	}
	h.serveFile(w, r, p)
}

// Convert serves a video transcoded to mp4, webm or animated webp
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	format, err := simplemedia.ParseVideoFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeError(w, "convert", err)
		return
	}
	size, err := strconv.Atoi(chi.URLParam(r, "size"))
	if err != nil {
		http.Error(w, "Invalid size", http.StatusBadRequest)
		return
	}
	blob, ok := h.source(w, r)
	if !ok {
		return
	}
	p, err := h.service.Convert(r.Context(), blob, format, size)
	if err != nil {
		if errors.Is(err, simplemedia.ErrTransformFailed) {
			slog.Error("Failed to convert video", "blob", blob.Name(), "format", format, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeError(w, "convert", err)
		return
	}
	h.serveFile(w, r, p)
}

// Original serves, in order: a public asset, a remote URL streamed while it
// is ingested, a blob by name, a blob by id.
func (h *Handler) Original(w http.ResponseWriter, r *http.Request) {
	if h.servePublic(w, r, r.URL.Path) {
		return
	}

	ref := chi.URLParam(r, "*")
	if simplemedia.IsRemote(ref) {
		h.streamRemote(w, r)
		return
	}
	if !simplemedia.IsBlobName(ref) && !simplemedia.IsID(ref) {
		http.Error(w, "File not found.", http.StatusNotFound)
		return
	}

	blob, err := h.service.Resolve(r.Context(), ref)
	if err != nil {
		writeError(w, "resolve", err)
		return
	}
	p, err := h.service.OriginalPath(r.Context(), blob)
	if err != nil {
		writeError(w, "open", err)
		return
	}
	h.serveFile(w, r, p)
}

func (h *Handler) streamRemote(w http.ResponseWriter, r *http.Request) {
	target, ok := remoteTarget(r)
	if !ok {
		http.Error(w, "Not a remote URL", http.StatusBadRequest)
		return
	}

	sink := &responseSink{w: w, cacheControl: h.cacheControl}
	result, err := h.service.Fetch(r.Context(), target, sink)
	if err != nil {
		if sink.started {
			// Headers are gone; the client sees a truncated body.
			slog.Error("Remote fetch failed mid-stream", "url", target, "error", err)
			return
		}
		writeError(w, "fetch", err)
		return
	}
	if !result.Cached {
		return
	}

	p, err := h.service.OriginalPath(r.Context(), result.File.Blob())
	if err != nil {
		writeError(w, "open", err)
		return
	}
	h.serveFile(w, r, p)
}

// responseSink relays a remote body to the client while it is ingested
type responseSink struct {
	w            http.ResponseWriter
	cacheControl string
	started      bool
}

func (s *responseSink) Start(statusCode int, contentType string) {
	s.started = true
	if contentType != "" {
		s.w.Header().Set("Content-Type", contentType)
	}
	if s.cacheControl != "" {
		s.w.Header().Set("Cache-Control", s.cacheControl)
	}
	s.w.WriteHeader(statusCode)
}

func (s *responseSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

// source resolves the wildcard to a blob, fetching remote URLs first
func (h *Handler) source(w http.ResponseWriter, r *http.Request) (simplemedia.Blob, bool) {
	if !simplemedia.IsRemote(chi.URLParam(r, "*")) {
		return h.resolve(w, r)
	}
	target, ok := remoteTarget(r)
	if !ok {
		http.Error(w, "Not a remote URL", http.StatusBadRequest)
		return simplemedia.Blob{}, false
	}
	result, err := h.service.Fetch(r.Context(), target, nil)
	if err != nil {
		writeError(w, "fetch", err)
		return simplemedia.Blob{}, false
	}
	return result.File.Blob(), true
}

// resolve maps the wildcard, a blob name or an id, to a blob
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (simplemedia.Blob, bool) {
	blob, err := h.service.Resolve(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, "resolve", err)
		return simplemedia.Blob{}, false
	}
	return blob, true
}

// remoteTarget extracts the remote URL from the raw request line, keeping
// its query string and escaping untouched.
func remoteTarget(r *http.Request) (string, bool) {
	uri := r.RequestURI
	if uri == "" {
		uri = r.URL.RequestURI()
	}
	i := strings.Index(uri, "/http")
	if i < 0 || !simplemedia.IsRemote(uri[i+1:]) {
		return "", false
	}
	return uri[i+1:], true
}

func (h *Handler) derivativeFailed(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, simplemedia.ErrTransformFailed) {
		slog.Error("Failed to create derivative", "op", op, "error", err)
		http.Redirect(w, r, BrokenThumbnailPath, http.StatusFound)
		return
	}
	writeError(w, op, err)
}

// serveFile sends a local file with the media Cache-Control header
func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, p string) {
	f, err := os.Open(p)
	if err != nil {
		slog.Error("Failed to open file", "path", p, "error", err)
		http.Error(w, "File not found.", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "File not found.", http.StatusNotFound)
		return
	}
	if h.cacheControl != "" {
		w.Header().Set("Cache-Control", h.cacheControl)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// servePublic serves name from the public directory if it is a regular file
func (h *Handler) servePublic(w http.ResponseWriter, r *http.Request, name string) bool {
	if h.publicDir == "" {
		return false
	}
	f, err := http.Dir(h.publicDir).Open(path.Clean("/" + name))
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return true
}

// BrokenThumbnail serves the placeholder image, from the public directory
// when it has one.
func (h *Handler) BrokenThumbnail(w http.ResponseWriter, r *http.Request) {
	if h.servePublic(w, r, BrokenThumbnailPath) {
		return
	}
	h.brokenOnce.Do(func() {
		h.broken = placeholderPNG(simplemedia.ThumbnailSize)
	})
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(h.broken)
}

// placeholderPNG draws a grey square with a diagonal cross
func placeholderPNG(size int) []byte {
	img := image.NewGray(image.Rect(0, 0, size, size))
	bg, fg := color.Gray{Y: 0xe0}, color.Gray{Y: 0x90}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if x == y || x == size-1-y {
				img.SetGray(x, y, fg)
			} else {
				img.SetGray(x, y, bg)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		slog.Error("Failed to encode placeholder", "error", err)
	}
	return buf.Bytes()
}
