// Package coordinator implements the processing coordinator (spec.md §4.3):
// it drives the external media-processing binary as a child process, manages
// per-job scratch directories, waits for readiness, and surfaces a
// ProcessingArtifact. Grounded on the ffmpeg transcoder plugin's
// StartTranscode/buildFFmpegArgs (backend/data/plugins/ffmpeg_transcoder/
// internal/services/ffmpeg.go): an independent background context per job
// (never tied to the caller's request context, so a request timeout never
// kills an in-flight encode), a stderr-draining goroutine so the child never
// stalls on a full pipe buffer, and stderr-tail-on-failure error surfacing.
package coordinator

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/vplayer/internal/planner"
	"github.com/mantonx/vplayer/internal/vplayererrors"
)

// stderrTailLimit bounds the retained stderr buffer per job (SPEC_FULL
// supplement grounded on ffmpeg.go's progress monitoring, which never bounds
// its own buffer — an omission worth fixing for long-running HLS jobs).
const stderrTailLimit = 4096

// Coordinator implements spec.md §4.3. It is stateless across jobs beyond
// the scratch-root directory, created once and reused (spec.md §5).
type Coordinator struct {
	logger          hclog.Logger
	ffmpegPath      func() (string, error)
	scratchRoot     string
	pollInterval    time.Duration
	readyTimeout    time.Duration
	hlsSegmentTime  int

	mu sync.Mutex // guards scratchRoot creation
}

// New builds a Coordinator. scratchRoot is the parent of every job's
// per-session directory (spec.md §6: "<system-temp>/vplayer-processing/").
func New(logger hclog.Logger, resolveFFmpeg func() (string, error), scratchRoot string, pollInterval, readyTimeout time.Duration, hlsSegmentTime int) *Coordinator {
	if scratchRoot == "" {
		scratchRoot = filepath.Join(os.TempDir(), "vplayer-processing")
	}
	return &Coordinator{
		logger:         logger.Named("coordinator"),
		ffmpegPath:     resolveFFmpeg,
		scratchRoot:    scratchRoot,
		pollInterval:   pollInterval,
		readyTimeout:   readyTimeout,
		hlsSegmentTime: hlsSegmentTime,
	}
}

func (c *Coordinator) newScratchDir() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.scratchRoot, 0o755); err != nil {
		return "", err
	}
	dir := filepath.Join(c.scratchRoot, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// PrepareRemux implements spec.md §4.3's prepare_stream(RemuxRequest).
func (c *Coordinator) PrepareRemux(req *planner.RemuxRequest) (*Task, <-chan Result) {
	task := &Task{}
	resultCh := make(chan Result, 1)

	go func() {
		scratchDir, err := c.newScratchDir()
		if err != nil {
			resultCh <- Result{Err: vplayererrors.Wrap(vplayererrors.ProcessingFailed, "could not create scratch directory", err)}
			return
		}

		args, outputPath := buildRemuxArgs(req, scratchDir)
		c.runFileJob(task, resultCh, scratchDir, args, outputPath)
	}()

	return task, resultCh
}

// PrepareTranscode implements spec.md §4.3's prepare_stream(TranscodeRequest).
func (c *Coordinator) PrepareTranscode(req *planner.TranscodeRequest) (*Task, <-chan Result) {
	task := &Task{}
	resultCh := make(chan Result, 1)

	go func() {
		scratchDir, err := c.newScratchDir()
		if err != nil {
			resultCh <- Result{Err: vplayererrors.Wrap(vplayererrors.ProcessingFailed, "could not create scratch directory", err)}
			return
		}

		encoder, hwFlag := encoderFor(req.VideoCodec, req.HardwareAcceleration)
		args, outputs := buildTranscodeArgs(req, encoder, hwFlag, scratchDir, c.hlsSegmentTime)

		if req.OutputMode == planner.OutputHLS {
			c.runHLSJob(task, resultCh, scratchDir, args, outputs.PlaylistFile)
		} else {
			c.runFileJob(task, resultCh, scratchDir, args, outputs.OutputFile)
		}
	}()

	return task, resultCh
}

// runFileJob launches the process and waits for it to exit before surfacing
// a File artifact (spec.md §4.3's File readiness protocol).
func (c *Coordinator) runFileJob(task *Task, resultCh chan<- Result, scratchDir string, args []string, outputPath string) {
	ffmpeg, err := c.ffmpegPath()
	if err != nil {
		os.RemoveAll(scratchDir)
		resultCh <- Result{Err: vplayererrors.Wrap(vplayererrors.ProcessingFailed, "ffmpeg binary not found", err)}
		return
	}

	jobCtx, cancelJob := context.WithCancel(context.Background())
	defer cancelJob()

	cmd, tail, wait := c.startProcess(jobCtx, ffmpeg, args)

	task.SetCancelHandler(func() { cancelJob() })

	if err := cmd.Start(); err != nil {
		os.RemoveAll(scratchDir)
		resultCh <- Result{Err: vplayererrors.Wrap(vplayererrors.ProcessingFailed, "failed to start process", err)}
		return
	}

	waitErr := wait()

	if task.Cancelled() {
		os.RemoveAll(scratchDir)
		resultCh <- Result{Err: vplayererrors.New(vplayererrors.Cancelled, "processing task cancelled")}
		return
	}

	exitCode := 0
	if waitErr != nil {
		exitCode = exitCodeOf(waitErr)
	}

	if exitCode != 0 {
		os.RemoveAll(scratchDir)
		resultCh <- Result{Err: vplayererrors.ProcessingFailure(exitCode, tail())}
		return
	}

	if _, statErr := os.Stat(outputPath); statErr != nil {
		os.RemoveAll(scratchDir)
		resultCh <- Result{Err: vplayererrors.Wrap(vplayererrors.OutputMissing, "output file absent after successful exit", statErr)}
		return
	}

	resultCh <- Result{Artifact: &Artifact{Kind: ArtifactFile, Path: outputPath, scratchDir: scratchDir}}
}

// runHLSJob launches the process and polls the playlist for readiness
// without waiting for process exit (spec.md §4.3's Hls readiness protocol).
func (c *Coordinator) runHLSJob(task *Task, resultCh chan<- Result, scratchDir string, args []string, playlistPath string) {
	ffmpeg, err := c.ffmpegPath()
	if err != nil {
		os.RemoveAll(scratchDir)
		resultCh <- Result{Err: vplayererrors.Wrap(vplayererrors.ProcessingFailed, "ffmpeg binary not found", err)}
		return
	}

	jobCtx, cancelJob := context.WithCancel(context.Background())

	cmd, tail, wait := c.startProcess(jobCtx, ffmpeg, args)

	task.SetCancelHandler(func() { cancelJob() })

	if err := cmd.Start(); err != nil {
		cancelJob()
		os.RemoveAll(scratchDir)
		resultCh <- Result{Err: vplayererrors.Wrap(vplayererrors.ProcessingFailed, "failed to start process", err)}
		return
	}

	// Drain the process asynchronously; it keeps running after we surface
	// the artifact, appending further segments, per spec.md §4.3.
	exitedCh := make(chan error, 1)
	go func() { exitedCh <- wait() }()

	deadline := time.Now().Add(c.readyTimeout)
	for {
		if task.Cancelled() {
			cancelJob()
			<-exitedCh
			os.RemoveAll(scratchDir)
			resultCh <- Result{Err: vplayererrors.New(vplayererrors.OutputMissing, "processing task cancelled during readiness poll")}
			return
		}

		if playlistHasSegment(playlistPath) {
			resultCh <- Result{Artifact: &Artifact{
				Kind:             ArtifactHLS,
				Directory:        scratchDir,
				PlaylistFilename: filepath.Base(playlistPath),
				scratchDir:       scratchDir,
			}}
			c.logRemainingLifecycle(exitedCh, tail, cancelJob)
			return
		}

		select {
		case werr := <-exitedCh:
			// Process exited before the playlist ever gained a segment.
			exitCode := exitCodeOf(werr)
			cancelJob()
			os.RemoveAll(scratchDir)
			if exitCode != 0 {
				resultCh <- Result{Err: vplayererrors.ProcessingFailure(exitCode, tail())}
			} else {
				resultCh <- Result{Err: vplayererrors.New(vplayererrors.OutputMissing, "process exited before playlist became ready")}
			}
			return
		case <-time.After(c.pollInterval):
		}

		if time.Now().After(deadline) {
			cancelJob()
			<-exitedCh
			os.RemoveAll(scratchDir)
			resultCh <- Result{Err: vplayererrors.New(vplayererrors.OutputMissing, "HLS readiness timed out")}
			return
		}
	}
}

// logRemainingLifecycle waits (in the background) for a surfaced HLS job's
// process to exit and logs, but does not propagate, a late failure — the
// artifact is already in use by the time this runs (spec.md §4.3).
func (c *Coordinator) logRemainingLifecycle(exitedCh <-chan error, tail func() string, cancelJob context.CancelFunc) {
	go func() {
		defer cancelJob()
		if err := <-exitedCh; err != nil {
			code := exitCodeOf(err)
			if code != 0 {
				c.logger.Warn("hls processing exited non-zero after artifact was handed off",
					"exit_code", code, "stderr_tail", tail())
			}
		}
	}()
}

// startProcess builds the exec.Cmd, wires a draining stderr pipe into a
// bounded ring buffer, and returns accessors for the tail and a blocking
// wait function.
func (c *Coordinator) startProcess(ctx context.Context, ffmpegPath string, args []string) (cmd *exec.Cmd, tail func() string, wait func() error) {
	command := exec.CommandContext(ctx, ffmpegPath, args...)

	stderr, err := command.StderrPipe()
	var tailBuf strings.Builder
	var tailMu sync.Mutex
	drained := make(chan struct{})
	if err == nil {
		go func() {
			drainStderr(stderr, &tailBuf, &tailMu)
			close(drained)
		}()
	} else {
		close(drained)
	}

	return command, func() string {
			tailMu.Lock()
			defer tailMu.Unlock()
			s := tailBuf.String()
			if len(s) > stderrTailLimit {
				s = s[len(s)-stderrTailLimit:]
			}
			return s
		}, func() error {
			// Wait closes the stderr pipe, so let the drain reach EOF first;
			// a cancelled job does not wait for it.
			select {
			case <-drained:
			case <-ctx.Done():
			}
			return command.Wait()
		}
}

func drainStderr(r io.Reader, buf *strings.Builder, mu *sync.Mutex) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		mu.Lock()
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')
		if buf.Len() > stderrTailLimit*4 {
			// Bound unbounded growth on very chatty/long jobs; tail() only
			// ever returns the last stderrTailLimit bytes anyway.
			trimmed := buf.String()
			buf.Reset()
			buf.WriteString(trimmed[len(trimmed)-stderrTailLimit:])
		}
		mu.Unlock()
	}
}

// playlistHasSegment reports whether path exists and contains at least one
// #EXTINF entry (spec.md §4.3's HLS readiness condition).
func playlistHasSegment(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "#EXTINF")
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
