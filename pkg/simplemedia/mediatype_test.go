package simplemedia

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeForExtension(t *testing.T) {
	assert.Equal(t, "image/jpeg", TypeForExtension("jpg"))
	assert.Equal(t, "image/jpeg", TypeForExtension(".JPG"))
	assert.Equal(t, "video/quicktime", TypeForExtension("mov"))
	assert.Equal(t, "application/octet-stream", TypeForExtension("nope"))

	assert.True(t, IsVideoExtension("webm"))
	assert.False(t, IsVideoExtension("png"))
}

func TestExtensionForType(t *testing.T) {
	assert.Equal(t, "png", ExtensionForType("image/png"))
	assert.Equal(t, "jpg", ExtensionForType("image/jpeg"))
	assert.Equal(t, "mp4", ExtensionForType("video/mp4"))
	assert.Equal(t, "html", ExtensionForType("text/html; charset=utf-8"))
	assert.Empty(t, ExtensionForType(""))
}

func TestUploadExtension(t *testing.T) {
	assert.Equal(t, "jpg", uploadExtension("Photo.JPG", "image/png"))
	assert.Equal(t, "png", uploadExtension("noext", "image/png"))
	assert.Equal(t, "bin", uploadExtension("noext", ""))
	assert.Equal(t, "bin", uploadExtension("weird.t-t", ""))
	assert.Equal(t, "zzq", uploadExtension("data.ZZQ", "image/png"))
}

func TestUploadAndFetchAgreeOnExtension(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
	}{
		{"a.jpeg", "image/jpeg"},
		{"a.JPG", "image/jpeg"},
		{"a.tif", "image/tiff"},
		{"a.png", "image/png"},
		{"a.mov", "video/quicktime"},
		{"a.mp4", "video/mp4"},
		{"a.txt", "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, remoteExtension(tt.contentType, nil, ""), uploadExtension(tt.name, ""))
			assert.Equal(t, uploadExtension(tt.name, ""), remoteExtension("", nil, "http://example.com/"+tt.name))
		})
	}
}

func TestRemoteExtension(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	assert.Equal(t, "gif", remoteExtension("image/gif", png, "http://example.com/a.png"))
	assert.Equal(t, "png", remoteExtension("", png, "http://example.com/a.jpg"))
	assert.Equal(t, "webm", remoteExtension("", nil, "http://example.com/clip.WEBM?x=1"))
	assert.Equal(t, "jpg", remoteExtension("", nil, "http://example.com/photo.jpeg"))
	assert.Equal(t, "bin", remoteExtension("", nil, "http://example.com/"))
}
