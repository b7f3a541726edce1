package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumeFor_PlaybackOffsetTakesPriority(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"entries": [],
		"lastPlayedPath": "/movies/other.mp4",
		"lastPlaybackSeconds": 900,
		"playbackOffsets": {"/movies/a.mp4": 42.5}
	}`), 0o644))

	store, err := Open(hclog.NewNullLogger(), path)
	require.NoError(t, err)

	secs, ok := store.ResumeFor("/movies/a.mp4")
	require.True(t, ok)
	assert.Equal(t, 42.5, secs)
}

func TestResumeFor_FallsBackToLastPlaybackSecondsWhenPathMatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"entries": [],
		"lastPlayedPath": "/movies/a.mp4",
		"lastPlaybackSeconds": 900,
		"playbackOffsets": {}
	}`), 0o644))

	store, err := Open(hclog.NewNullLogger(), path)
	require.NoError(t, err)

	secs, ok := store.ResumeFor("/movies/a.mp4")
	require.True(t, ok)
	assert.Equal(t, 900.0, secs)

	_, ok = store.ResumeFor("/movies/b.mp4")
	assert.False(t, ok)
}

func TestOpen_MissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.json")

	store, err := Open(hclog.NewNullLogger(), path)
	require.NoError(t, err)

	_, ok := store.ResumeFor("/anything.mp4")
	assert.False(t, ok)
}

func TestRecordPosition_PersistsAtomicallyAndRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")

	store, err := Open(hclog.NewNullLogger(), path)
	require.NoError(t, err)

	require.NoError(t, store.RecordPosition("/movies/a.mp4", 12.5))

	reopened, err := Open(hclog.NewNullLogger(), path)
	require.NoError(t, err)

	secs, ok := reopened.ResumeFor("/movies/a.mp4")
	require.True(t, ok)
	assert.Equal(t, 12.5, secs)

	// No stray temp files left behind by renameio.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
