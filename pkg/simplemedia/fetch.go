package simplemedia

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 6.1; WOW64; rv:28.0) Gecko/20100101 Firefox/28.0"

	fetchAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	fetchAcceptLanguage = "fr,en-US;q=0.8,en;q=0.6"

	sniffLen = 512
)

// NormalizeURL repairs the "http:/host" form and rejects anything that is
// not an absolute http(s) URL.
func NormalizeURL(raw string) (string, error) {
	for _, scheme := range []string{"http:", "https:"} {
		if strings.HasPrefix(raw, scheme+"/") && !strings.HasPrefix(raw, scheme+"//") {
			raw = scheme + "//" + strings.TrimPrefix(raw, scheme+"/")
			break
		}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: not a remote url %q", ErrInvalidPath, raw)
	}
	return raw, nil
}

func (s *service) Fetch(ctx context.Context, rawURL string, sink FetchSink) (*FetchResult, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetFileByURL(ctx, target)
	if err == nil {
		return &FetchResult{File: existing, Cached: true}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup url %s: %w", target, err)
	}

	// The download outlives the request so that a client hanging up does
	// not leave a half-ingested file.
	work := context.WithoutCancel(ctx)
	fetchCtx := work
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(work, s.fetchTimeout)
		defer cancel()
	}

	resp, err := s.get(fetchCtx, target)
	if err != nil {
		return nil, &MediaError{Op: "fetch", Path: target, Err: fmt.Errorf("%w: %w", ErrUpstreamFetch, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &MediaError{Op: "fetch", Path: target, Err: fmt.Errorf("%w: status %s", ErrUpstreamFetch, resp.Status)}
	}

	contentType := resp.Header.Get("Content-Type")
	if sink != nil {
		sink.Start(resp.StatusCode, contentType)
	}

	tmp, err := s.store.TempFile(work)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	hasher := sha256.New()
	head := &headBuffer{}
	writers := []io.Writer{tmp, hasher, head}
	if sink != nil {
		writers = append(writers, &failSafeWriter{w: sink})
	}
	size, copyErr := io.Copy(io.MultiWriter(writers...), resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		removeTemp(tmpPath)
		if copyErr != nil {
			return nil, &MediaError{Op: "fetch", Path: target, Err: fmt.Errorf("%w: %w", ErrUpstreamFetch, copyErr)}
		}
		return nil, fmt.Errorf("stage %s: %w", target, closeErr)
	}

	blob := Blob{
		Hash:      hex.EncodeToString(hasher.Sum(nil)),
		Extension: remoteExtension(contentType, head.buf, target),
	}
	if _, err := s.store.Write(work, tmpPath, blob); err != nil {
		removeTemp(tmpPath)
		return nil, fmt.Errorf("install %s: %w", blob, err)
	}

	id, err := s.registry.ToID(work, blob.Hash, blob.Extension)
	if err != nil {
		return nil, err
	}

	if contentType == "" {
		contentType = TypeForExtension(blob.Extension)
	}
	record := &FileRecord{
		Name:      urlFileName(target),
		ID:        id,
		Size:      size,
		Hash:      blob.Hash,
		Extension: blob.Extension,
		Type:      contentType,
		URL:       target,
		ModTime:   time.Now().UTC(),
	}
	if err := s.repo.CreateFile(work, record); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// A concurrent fetch of the same URL recorded it first.
			if winner, lookupErr := s.repo.GetFileByURL(work, target); lookupErr == nil {
				return &FetchResult{File: winner}, nil
			}
		}
		return nil, fmt.Errorf("record %s: %w", target, err)
	}

	slog.Info("Fetched remote file", "url", target, "blob", blob.Name(), "size", size)
	return &FetchResult{File: record}, nil
}

func (s *service) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", fetchAccept)
	req.Header.Set("Accept-Language", fetchAcceptLanguage)
	if req.URL.User == nil {
		if cred, ok := s.auths[req.URL.Hostname()]; ok {
			user, pass, _ := strings.Cut(cred, ":")
			req.SetBasicAuth(user, pass)
		}
	}
	return s.httpClient.Do(req)
}

// urlFileName is the last path segment of the URL, or "untitled".
func urlFileName(target string) string {
	p := stripQuery(target)
	if i := strings.Index(p, "://"); i >= 0 {
		p = p[i+3:]
	}
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "untitled"
	}
	if name := p[i+1:]; name != "" {
		if unescaped, err := url.PathUnescape(name); err == nil {
			return unescaped
		}
		return name
	}
	return "untitled"
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to remove temp file", "path", path, "error", err)
	}
}

// headBuffer keeps the first bytes of a stream for content sniffing.
type headBuffer struct {
	buf []byte
}

func (h *headBuffer) Write(p []byte) (int, error) {
	if n := sniffLen - len(h.buf); n > 0 {
		if len(p) < n {
			n = len(p)
		}
		h.buf = append(h.buf, p[:n]...)
	}
	return len(p), nil
}

// failSafeWriter forwards to w until w fails, then discards. A client that
// goes away must not abort the ingestion it triggered.
type failSafeWriter struct {
	w      io.Writer
	failed bool
}

func (f *failSafeWriter) Write(p []byte) (int, error) {
	if !f.failed {
		if _, err := f.w.Write(p); err != nil {
			f.failed = true
			slog.Debug("Live stream client went away", "error", err)
		}
	}
	return len(p), nil
}
