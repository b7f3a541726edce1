package coordinator

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/vplayer/internal/planner"
	"github.com/mantonx/vplayer/internal/vplayererrors"
)

func requirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg scripts are POSIX shell scripts")
	}
}

// writeFakeFFmpeg writes script to an executable file standing in for the
// real ffmpeg binary and returns its path. Each test's script decides what
// to write (usually to the last argument, the output path), how long to
// sleep, and which exit code to return.
func writeFakeFFmpeg(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestCoordinator(t *testing.T, ffmpegPath string) *Coordinator {
	scratchRoot := t.TempDir()
	return New(
		hclog.NewNullLogger(),
		func() (string, error) { return ffmpegPath, nil },
		scratchRoot,
		20*time.Millisecond,
		2*time.Second,
		4,
	)
}

func TestPrepareRemux_SuccessProducesFileArtifact(t *testing.T) {
	requirePOSIX(t)
	fake := writeFakeFFmpeg(t, `#!/bin/sh
out=""
for a in "$@"; do out="$a"; done
echo fakedata > "$out"
exit 0
`)
	coord := newTestCoordinator(t, fake)
	videoIdx, audioIdx := 0, 1
	task, resultCh := coord.PrepareRemux(&planner.RemuxRequest{
		SourceURL:          "/tmp/in.mkv",
		TargetContainer:    "mp4",
		VideoStreamIndex:   &videoIdx,
		AudioStreamIndex:   &audioIdx,
		OriginalVideoCodec: "hevc",
	})
	_ = task

	select {
	case res := <-resultCh:
		require.NoError(t, res.Err)
		require.NotNil(t, res.Artifact)
		assert.Equal(t, ArtifactFile, res.Artifact.Kind)
		_, err := os.Stat(res.Artifact.Path)
		assert.NoError(t, err)
		require.NoError(t, res.Artifact.Cleanup())
		require.NoError(t, res.Artifact.Cleanup()) // idempotent
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for remux result")
	}
}

func TestPrepareRemux_FailureReportsExitCodeAndStderrTail(t *testing.T) {
	requirePOSIX(t)
	fake := writeFakeFFmpeg(t, `#!/bin/sh
echo "boom" 1>&2
exit 7
`)
	coord := newTestCoordinator(t, fake)
	_, resultCh := coord.PrepareRemux(&planner.RemuxRequest{SourceURL: "/tmp/in.mkv"})

	select {
	case res := <-resultCh:
		require.Error(t, res.Err)
		var perr *vplayererrors.Error
		require.True(t, errors.As(res.Err, &perr))
		assert.Equal(t, vplayererrors.ProcessingFailed, perr.Kind)
		assert.Equal(t, 7, perr.ExitCode)
		assert.Contains(t, perr.StderrTail, "boom")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for remux failure result")
	}
}

func TestPrepareTranscode_HLSNotSurfacedUntilExtinf(t *testing.T) {
	requirePOSIX(t)
	// Sleeps briefly before writing the playlist so the poll loop must
	// iterate more than once before readiness (spec.md §8's HLS invariant).
	fake := writeFakeFFmpeg(t, `#!/bin/sh
playlist=""
for a in "$@"; do playlist="$a"; done
sleep 0.1
echo "#EXTM3U" > "$playlist"
echo "#EXTINF:4.0," >> "$playlist"
echo "segment_00000.ts" >> "$playlist"
sleep 1
exit 0
`)
	coord := newTestCoordinator(t, fake)
	_, resultCh := coord.PrepareTranscode(&planner.TranscodeRequest{
		SourceURL:    "/tmp/in.avi",
		VideoCodec:   "h264",
		AudioCodec:   "aac",
		VideoBitrate: "6000k",
		VideoBufferSize: "12000k",
		AudioBitrate: "192k",
		OutputMode:   planner.OutputHLS,
	})

	select {
	case res := <-resultCh:
		require.NoError(t, res.Err)
		require.NotNil(t, res.Artifact)
		assert.Equal(t, ArtifactHLS, res.Artifact.Kind)
		assert.Equal(t, "master.m3u8", res.Artifact.PlaylistFilename)
		require.NoError(t, res.Artifact.Cleanup())
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for HLS readiness")
	}
}

func TestPrepareTranscode_HLSTimesOutWithoutSegment(t *testing.T) {
	requirePOSIX(t)
	fake := writeFakeFFmpeg(t, `#!/bin/sh
sleep 5
exit 0
`)
	coord := newTestCoordinator(t, fake)
	coord.readyTimeout = 100 * time.Millisecond
	_, resultCh := coord.PrepareTranscode(&planner.TranscodeRequest{
		SourceURL:  "/tmp/in.avi",
		VideoCodec: "h264",
		AudioCodec: "aac",
		OutputMode: planner.OutputHLS,
	})

	select {
	case res := <-resultCh:
		require.Error(t, res.Err)
		assert.Nil(t, res.Artifact)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for HLS readiness timeout")
	}
}

func TestTask_CancelHandlerFiresImmediatelyIfAlreadyCancelled(t *testing.T) {
	task := &Task{}
	task.Cancel()

	fired := false
	task.SetCancelHandler(func() { fired = true })
	assert.True(t, fired)
}

func TestTask_CancelIsIdempotent(t *testing.T) {
	task := &Task{}
	calls := 0
	task.SetCancelHandler(func() { calls++ })
	task.Cancel()
	task.Cancel()
	assert.Equal(t, 1, calls)
}
