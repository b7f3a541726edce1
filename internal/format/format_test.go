package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefersDirect_DirectExtensions(t *testing.T) {
	for _, ext := range []string{".mp4", ".m4v", ".mov", ".m4a"} {
		assert.True(t, PrefersDirect(ext), "%s should prefer direct playback", ext)
	}
}

func TestPrefersDirect_IsCaseInsensitive(t *testing.T) {
	assert.True(t, PrefersDirect(".MP4"))
	assert.True(t, PrefersDirect(".Mov"))
}

func TestPrefersDirect_RejectsNonDirectAndUnknownExtensions(t *testing.T) {
	assert.False(t, PrefersDirect(".mkv"))
	assert.False(t, PrefersDirect(".xyz"))
	assert.False(t, PrefersDirect(""))
}

func TestRecognized_DirectExtensionsAreAlsoRecognized(t *testing.T) {
	for _, ext := range []string{".mp4", ".m4v", ".mov", ".m4a"} {
		assert.True(t, Recognized(ext))
	}
}

func TestRecognized_NonDirectContainersAreRecognized(t *testing.T) {
	for _, ext := range []string{".mkv", ".avi", ".webm", ".flv", ".wmv", ".ts", ".m2ts", ".mpg", ".mpeg", ".3gp", ".ogv"} {
		assert.True(t, Recognized(ext), "%s should be recognized", ext)
	}
}

func TestRecognized_IsCaseInsensitive(t *testing.T) {
	assert.True(t, Recognized(".MKV"))
}

func TestRecognized_RejectsUnknownExtension(t *testing.T) {
	assert.False(t, Recognized(".xyz"))
}
