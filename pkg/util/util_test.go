package util

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateShortUUID(t *testing.T) {
	id := GenerateShortUUID()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")
	assert.NotEqual(t, id, GenerateShortUUID())
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 10))
	assert.Equal(t, "abc", TruncateString("abcdef", 3))
	assert.Equal(t, "", TruncateString("abc", 0))
	assert.Equal(t, strings.Repeat("x", 100), TruncateString(strings.Repeat("x", 200), 100))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2.0min", FormatDuration(2*time.Minute))
	assert.Equal(t, "1.5h", FormatDuration(90*time.Minute))
}

func TestContentTypeByExt(t *testing.T) {
	assert.Equal(t, "image/tiff", ContentTypeByExt("D1012345-D00001.TIF"))
	assert.Equal(t, "image/jpeg", ContentTypeByExt("photo.jpg"))
	assert.Equal(t, "application/octet-stream", ContentTypeByExt("doc.pdf"))
}

func TestIsSupportedImage(t *testing.T) {
	assert.True(t, IsSupportedImage("a.TIF"))
	assert.True(t, IsSupportedImage("a.webp"))
	assert.False(t, IsSupportedImage("a.txt"))
	assert.False(t, IsSupportedImage("noext"))
}
