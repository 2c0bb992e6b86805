// Package api exposes the media store over HTTP.
package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// BrokenThumbnailPath is where failed thumbnails and resizes redirect to
const BrokenThumbnailPath = "/broken_thumbnail.png"

const defaultCacheControl = "max-age=290304000, public"

// Handler serves the media store endpoints
type Handler struct {
	service      simplemedia.Service
	cacheControl string
	publicDir    string

	brokenOnce sync.Once
	broken     []byte
}

// Option configures a Handler
type Option func(*Handler)

// WithCacheControl sets the Cache-Control value of successful media responses
func WithCacheControl(value string) Option {
	return func(h *Handler) {
		h.cacheControl = value
	}
}

// WithPublicDir serves static assets from dir before any media lookup
func WithPublicDir(dir string) Option {
	return func(h *Handler) {
		h.publicDir = dir
	}
}

// NewHandler creates a new media handler
func NewHandler(service simplemedia.Service, opts ...Option) *Handler {
	h := &Handler{
		service:      service,
		cacheControl: defaultCacheControl,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for the media endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get(BrokenThumbnailPath, h.BrokenThumbnail)

	r.Get("/files", h.ListFiles)
	r.Get("/paginateFiles/{page}", h.PaginateFiles)
	r.Post("/upload", h.Upload)
	r.Get("/fetch/*", h.Fetch)
	r.Get("/details/*", h.Details)
	r.Get("/remove/*", h.Remove)

	r.Get("/thumbnail/*", h.Thumbnail)
	r.Get("/resize/{width}/{height}/*", h.Resize)
	r.Get("/resize/deform/{width}/{height}/*", h.ResizeDeform)
	r.Get("/convert/{format}/{size}/*", h.Convert)

	r.Get("/*", h.Original)

	return r
}

// ListFiles returns every file record, newest first
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.service.ListFiles(r.Context())
	if err != nil {
		writeError(w, "list files", err)
		return
	}
	render.JSON(w, r, files)
}

// PaginateFiles returns one page of file records. A negative page returns
// the newest records.
func (h *Handler) PaginateFiles(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(chi.URLParam(r, "page"))
	if page < -1 {
		page = -1
	}

	pageSize := 0
	if raw, ok := r.URL.Query()["pageSize"]; ok {
		n := 0
		if len(raw) > 0 {
			n, _ = strconv.Atoi(raw[0])
		}
		pageSize = max(simplemedia.MinPageSize, n)
	}

	result, err := h.service.PaginateFiles(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, "paginate files", err)
		return
	}
	render.JSON(w, r, result)
}

// Upload ingests the first file part of a multipart request
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		slog.Error("Invalid upload request", "error", err)
		http.Error(w, "Sorry, file upload error", http.StatusBadRequest)
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Error("Failed to read upload", "error", err)
			http.Error(w, "Sorry, file upload error", http.StatusBadRequest)
			return
		}
		if part.FileName() == "" {
			part.Close()
			continue
		}

		status, err := h.service.Ingest(r.Context(), simplemedia.IngestRequest{
			Name:        part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
		})
		part.Close()
		if err != nil {
			writeError(w, "ingest upload", err)
			return
		}
		slog.Info("File uploaded", "name", status.Name, "blob", status.Blob().Name(), "status", status.Status)
		render.JSON(w, r, status)
		return
	}

	http.Error(w, "No file in upload", http.StatusBadRequest)
}

// Fetch ingests a remote URL and returns its record
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	target, ok := remoteTarget(r)
	if !ok {
		http.Error(w, "Not a remote URL", http.StatusBadRequest)
		return
	}
	result, err := h.service.Fetch(r.Context(), target, nil)
	if err != nil {
		writeError(w, "fetch", err)
		return
	}
	render.JSON(w, r, &simplemedia.FileStatus{FileRecord: result.File, Status: simplemedia.StatusOK})
}

// Details returns the record of a blob name or id
func (h *Handler) Details(w http.ResponseWriter, r *http.Request) {
	blob, ok := h.resolve(w, r)
	if !ok {
		return
	}
	file, err := h.service.Details(r.Context(), blob)
	if err != nil {
		writeError(w, "details", err)
		return
	}
	render.JSON(w, r, file)
}

// RemoveResponse is the response body of a removal
type RemoveResponse struct {
	NumRemoved int `json:"numRemoved"`
}

// Remove deletes a blob, its derivatives and its records
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	blob, ok := h.resolve(w, r)
	if !ok {
		return
	}
	n, err := h.service.Remove(r.Context(), blob, r.URL.Query().Get("key"))
	if err != nil {
		writeError(w, "remove", err)
		return
	}
	slog.Info("File removed", "blob", blob.Name(), "records", n)
	render.JSON(w, r, RemoveResponse{NumRemoved: n})
}
