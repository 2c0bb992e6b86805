package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, simplemedia.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, simplemedia.ErrNotFound), errors.Is(err, simplemedia.ErrUpstreamFetch):
		return http.StatusNotFound
	case errors.Is(err, simplemedia.ErrInvalidPath):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusNotFound:
		slog.Debug("Not found", "op", op, "error", err)
		if errors.Is(err, simplemedia.ErrUpstreamFetch) {
			http.Error(w, err.Error(), status)
			return
		}
		http.Error(w, "File not found.", status)
	case http.StatusForbidden:
		slog.Warn("Forbidden", "op", op)
		http.Error(w, "Missing or wrong deletions key", status)
	case http.StatusBadRequest:
		http.Error(w, err.Error(), status)
	default:
		slog.Error("Request failed", "op", op, "error", err)
		if errors.Is(err, simplemedia.ErrStoreInconsistency) {
			http.Error(w, "File's database record doesn't exist.", status)
			return
		}
		http.Error(w, "Internal server error", status)
	}
}
