package simplemedia

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlob(t *testing.T) {
	hash := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

	b, err := ParseBlob(hash + ".png")
	require.NoError(t, err)
	assert.Equal(t, Blob{Hash: hash, Extension: "png"}, b)
	assert.Equal(t, hash+".png", b.Name())
	assert.NoError(t, b.Validate())

	for _, bad := range []string{"", hash, "abc.png", hash + ".p/g", "../" + hash + ".png"} {
		_, err := ParseBlob(bad)
		assert.ErrorIs(t, err, ErrInvalidPath, bad)
	}
}

func TestRefClassification(t *testing.T) {
	assert.True(t, IsRemote("http://example.com/a.png"))
	assert.True(t, IsRemote("https:/example.com/a.png"))
	assert.False(t, IsRemote("ftp://example.com/a.png"))

	assert.True(t, IsID("BraveQuietOtter"))
	assert.True(t, IsID("loyw3v28-1-deadbeef"))
	assert.False(t, IsID("a.png"))
	assert.False(t, IsID("../x"))
}

func TestParseVideoFormat(t *testing.T) {
	f, err := ParseVideoFormat("WEBM")
	require.NoError(t, err)
	assert.Equal(t, FormatWebM, f)

	_, err = ParseVideoFormat("avi")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestNormalizeURL(t *testing.T) {
	got, err := NormalizeURL("http:/example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/a.png", got)

	got, err = NormalizeURL("https://example.com/a.png?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.png?x=1", got)

	_, err = NormalizeURL("file:///etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestURLFileName(t *testing.T) {
	assert.Equal(t, "cat.png", urlFileName("http://example.com/img/cat.png?size=2"))
	assert.Equal(t, "my cat.png", urlFileName("http://example.com/my%20cat.png"))
	assert.Equal(t, "untitled", urlFileName("http://example.com/"))
	assert.Equal(t, "untitled", urlFileName("http://example.com"))
}
