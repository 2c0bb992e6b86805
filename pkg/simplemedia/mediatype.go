package simplemedia

import (
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const defaultExtension = "bin"

// Go's builtin table has no video entries and the system tables are not
// always installed, so the formats the derivation cache cares about are
// listed here.
var extensionTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"heic": "image/heic",
	"mp4":  "video/mp4",
	"m4v":  "video/x-m4v",
	"mov":  "video/quicktime",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
	"avi":  "video/x-msvideo",
	"ogv":  "video/ogg",
	"mpeg": "video/mpeg",
	"mpg":  "video/mpeg",
	"3gp":  "video/3gpp",
	"flv":  "video/x-flv",
	"wmv":  "video/x-ms-wmv",
}

// TypeForExtension returns the content type registered for ext, or
// application/octet-stream.
func TypeForExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension("." + ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// IsVideoExtension reports whether blobs with this extension are videos.
func IsVideoExtension(ext string) bool {
	return strings.HasPrefix(TypeForExtension(ext), "video/")
}

// ExtensionForType returns the file extension (without dot) for a content
// type. Parameters such as charset are ignored.
func ExtensionForType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.ToLower(contentType))
	}
	if mediaType == "" {
		return ""
	}
	if m := mimetype.Lookup(mediaType); m != nil && m.Extension() != "" {
		return strings.TrimPrefix(m.Extension(), ".")
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return ""
}

// canonicalExtension maps a file name extension to the extension of its
// content type, so "jpeg" and "jpg" name the same blob. Extensions of
// unknown types are kept as they are.
func canonicalExtension(ext string) string {
	ext = strings.ToLower(ext)
	if t := TypeForExtension(ext); t != "application/octet-stream" {
		if canonical := ExtensionForType(t); canonical != "" {
			return canonical
		}
	}
	return ext
}

// uploadExtension picks the stored extension of an upload: the type implied
// by the file name wins over the declared part type.
func uploadExtension(name, contentType string) string {
	if ext := strings.TrimPrefix(path.Ext(name), "."); ext != "" && isAlnum(ext) {
		return canonicalExtension(ext)
	}
	if ext := ExtensionForType(contentType); ext != "" {
		return ext
	}
	return defaultExtension
}

// remoteExtension picks the stored extension of a fetched body: the response
// content type, then the sniffed bytes, then the URL path.
func remoteExtension(contentType string, head []byte, rawURL string) string {
	if ext := ExtensionForType(contentType); ext != "" {
		return ext
	}
	if len(head) > 0 {
		if ext := strings.TrimPrefix(mimetype.Detect(head).Extension(), "."); ext != "" {
			return ext
		}
	}
	if ext := strings.TrimPrefix(path.Ext(stripQuery(rawURL)), "."); ext != "" && isAlnum(ext) {
		return canonicalExtension(ext)
	}
	return defaultExtension
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
