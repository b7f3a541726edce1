// Package session implements the playback session controller (spec.md
// §4.5): it threads a single user-visible "play file X" intent through the
// inspector/planner/coordinator/HTTP-server pipeline, handles backend
// readiness, persists resume offsets, escalates to a heavier plan on
// renderer failure, and tears down prior resources before starting a new
// session. Grounded on the teacher's Manager facade
// (internal/modules/playbackmodule/manager.go): a small struct wiring
// sub-services together with an explicit lifecycle, generalized here into
// the single-active-session state machine spec.md §4.5 requires (the
// teacher's own Manager is multi-session and stateless by comparison).
package session

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/vplayer/internal/coordinator"
	"github.com/mantonx/vplayer/internal/planner"
	"github.com/mantonx/vplayer/internal/vplayererrors"
)

// Planner is the subset of planner.Planner the controller depends on.
type Planner interface {
	Plan(ctx context.Context, url string) planner.Plan
	ForcedTranscodePlan(ctx context.Context, url string) planner.Plan
}

// Coordinator is the subset of coordinator.Coordinator the controller
// depends on.
type Coordinator interface {
	PrepareRemux(req *planner.RemuxRequest) (*coordinator.Task, <-chan coordinator.Result)
	PrepareTranscode(req *planner.TranscodeRequest) (*coordinator.Task, <-chan coordinator.Result)
}

// StreamHandle is the subset of streamserver.Handle the controller depends
// on.
type StreamHandle interface {
	Cleanup()
}

// StreamServer is the subset of streamserver.Server the controller depends
// on.
type StreamServer interface {
	RegisterFile(path string) (Handle, error)
	RegisterHLS(directory, playlistFilename string) (Handle, error)
}

// Handle unifies the URL-bearing, cleanup-bearing shape returned by both
// RegisterFile and RegisterHLS.
type Handle interface {
	StreamHandle
	StreamURL() string
}

// History is the resume/history interface the controller consumes (spec.md
// §6).
type History interface {
	ResumeFor(path string) (float64, bool)
	RecordPosition(path string, seconds float64) error
}

// FailureSurfacer receives user-visible failure messages. The controller is
// "the only component that owns user-visible failure surfacing" (spec.md
// §7); this is that surface's seam.
type FailureSurfacer interface {
	SurfaceFailure(message string)
}

// SourceAccessor acquires the OS-level access token for a source URL —
// spec.md §9 groups this alongside the streamserver's file handles and the
// coordinator's stderr reader as one of the three scoped resources every
// exit path must release. Seamed as an interface, the same way Planner and
// Coordinator are, so tests can exercise acquisition failure without
// touching the filesystem.
type SourceAccessor interface {
	Acquire(url string) (io.Closer, error)
}

// fileAccessor is the production SourceAccessor: opening the file both
// validates access and doubles as the handle released on teardown.
type fileAccessor struct{}

func (fileAccessor) Acquire(url string) (io.Closer, error) {
	f, err := os.Open(url)
	if err != nil {
		return nil, vplayererrors.Wrap(vplayererrors.PermissionDenied, "source URL could not be opened", err)
	}
	return f, nil
}

// activeSession is the PlaybackSession record (spec.md §3). It is
// single-threaded — mutated only from the controller's owning goroutine —
// and so needs no lock of its own (spec.md §5).
type activeSession struct {
	url           string
	plan          planner.Plan
	artifact      *coordinator.Artifact
	task          *coordinator.Task
	streamHandle  Handle
	sourceAccess  io.Closer
	pendingResume *float64
	hasEscalated  bool

	havePersisted    bool
	lastPersistedSec float64
}

// Controller implements spec.md §4.5.
type Controller struct {
	logger hclog.Logger

	planner     Planner
	coordinator Coordinator
	server      StreamServer
	history     History
	renderer    Renderer
	failures    FailureSurfacer
	accessor    SourceAccessor

	replayCountdown  time.Duration
	persistThreshold time.Duration

	// mu guards only cross-goroutine visibility of state/current — all
	// mutation still happens from the controller's owning goroutine per
	// spec.md §5; state/current are read by tests and diagnostics from
	// other goroutines.
	mu      sync.Mutex
	state   State
	current *activeSession
}

// New builds a Controller. renderer and failures may be nil in tests that
// only exercise the state machine. accessor may be nil, in which case
// source URLs are opened with the real filesystem via os.Open.
func New(logger hclog.Logger, p Planner, c Coordinator, s StreamServer, h History, r Renderer, f FailureSurfacer, accessor SourceAccessor, replayCountdown, persistThreshold time.Duration) *Controller {
	if accessor == nil {
		accessor = fileAccessor{}
	}
	return &Controller{
		logger:           logger.Named("session-controller"),
		planner:          p,
		coordinator:      c,
		server:           s,
		history:          h,
		renderer:         r,
		failures:         f,
		accessor:         accessor,
		replayCountdown:  replayCountdown,
		persistThreshold: persistThreshold,
		state:            StateIdle,
	}
}

// ReplayCountdown returns the configured replay-countdown duration, for a
// UI layer to render the countdown spec.md §4.5 describes.
func (c *Controller) ReplayCountdown() time.Duration {
	return c.replayCountdown
}

// State returns the controller's current BackendState.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Load implements spec.md §4.5's load(url) transition.
func (c *Controller) Load(ctx context.Context, url string) {
	c.teardown()

	access, err := c.accessor.Acquire(url)
	if err != nil {
		c.setState(StateIdle)
		if c.failures != nil {
			c.failures.SurfaceFailure(err.Error())
		}
		return
	}

	resumeSecs, hasResume := c.history.ResumeFor(url)
	var resumePtr *float64
	if hasResume {
		v := resumeSecs
		resumePtr = &v
	}

	plan := c.planner.Plan(ctx, url)

	c.current = &activeSession{
		url:           url,
		plan:          plan,
		pendingResume: resumePtr,
		sourceAccess:  access,
	}

	switch plan.Kind {
	case planner.PlanDirect:
		c.setState(StateActive)
		if c.renderer != nil {
			if err := c.renderer.Attach(plan.DirectURL, resumePtr); err != nil {
				c.surfaceAndReset(err.Error())
			}
		}
	default:
		c.setState(StatePreparing)
		c.startProcessing(url, plan)
	}
}

// startProcessing dispatches the coordinator job for a Remux or Transcode
// plan and wires the completion handler with the stale-callback guard
// (spec.md §5's "callbacks for an older URL are dropped by comparing the URL
// captured at dispatch time").
func (c *Controller) startProcessing(dispatchURL string, plan planner.Plan) {
	var task *coordinator.Task
	var resultCh <-chan coordinator.Result

	switch plan.Kind {
	case planner.PlanRemux:
		task, resultCh = c.coordinator.PrepareRemux(plan.Remux)
	case planner.PlanTranscode:
		task, resultCh = c.coordinator.PrepareTranscode(plan.Transcode)
	default:
		return
	}

	c.current.task = task

	go func() {
		result := <-resultCh
		c.handleProcessingResult(dispatchURL, result)
	}()
}

// handleProcessingResult implements the Preparing -> Active / Preparing ->
// Idle transitions (spec.md §4.5).
func (c *Controller) handleProcessingResult(dispatchURL string, result coordinator.Result) {
	c.mu.Lock()
	stale := c.current == nil || c.current.url != dispatchURL
	c.mu.Unlock()

	if stale {
		if result.Artifact != nil {
			result.Artifact.Cleanup()
		}
		return
	}

	if result.Err != nil {
		if kind, ok := vplayererrors.KindOf(result.Err); ok && kind == vplayererrors.Cancelled {
			return
		}
		c.current.artifact = nil
		c.surfaceAndReset(result.Err.Error())
		return
	}

	c.current.artifact = result.Artifact

	handle, err := c.registerArtifact(result.Artifact)
	if err != nil {
		result.Artifact.Cleanup()
		c.surfaceAndReset(err.Error())
		return
	}

	c.current.streamHandle = handle
	c.setState(StateActive)

	if c.renderer != nil {
		if err := c.renderer.Attach(handle.StreamURL(), c.current.pendingResume); err != nil {
			c.surfaceAndReset(err.Error())
		}
	}
}

func (c *Controller) registerArtifact(artifact *coordinator.Artifact) (Handle, error) {
	switch artifact.Kind {
	case coordinator.ArtifactFile:
		return c.server.RegisterFile(artifact.Path)
	case coordinator.ArtifactHLS:
		return c.server.RegisterHLS(artifact.Directory, artifact.PlaylistFilename)
	default:
		return nil, vplayererrors.New(vplayererrors.InvalidRequest, "unknown artifact kind")
	}
}

// NotifyRendererFailure implements spec.md §4.5's failure-escalation rule:
// on a Direct or Remux plan, escalate to Transcode exactly once; a failure
// after escalation (or on an already-Transcode plan) is fatal.
func (c *Controller) NotifyRendererFailure(ctx context.Context, message string) {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()

	if cur == nil {
		return
	}

	eligible := (cur.plan.Kind == planner.PlanDirect || cur.plan.Kind == planner.PlanRemux) && !cur.hasEscalated
	if !eligible {
		c.surfaceAndReset(message)
		return
	}

	url := cur.url
	cur.hasEscalated = true

	c.teardownResourcesOnly()

	plan := c.planner.ForcedTranscodePlan(ctx, url)
	c.current = &activeSession{
		url:           url,
		plan:          plan,
		pendingResume: cur.pendingResume,
		hasEscalated:  true,
		sourceAccess:  cur.sourceAccess,
	}
	c.setState(StatePreparing)
	c.startProcessing(url, plan)
}

// NotifyEndOfStream implements spec.md §4.5's Active -> Completed transition.
func (c *Controller) NotifyEndOfStream() {
	c.setState(StateCompleted)
}

// Replay restarts the current session's URL at zero, per spec.md §4.5's
// replay-countdown resolution.
func (c *Controller) Replay(ctx context.Context) {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur == nil {
		return
	}
	c.Load(ctx, cur.url)
}

// CancelReplay implements the "stays in Completed until the next user
// action" branch of spec.md §4.5's replay countdown.
func (c *Controller) CancelReplay() {
	// No state change: Completed persists until Load/Stop/Replay.
}

// Stop implements spec.md §4.5's Active -> Idle "user stop" transition.
func (c *Controller) Stop() {
	c.teardown()
	c.setState(StateIdle)
}

// PersistPosition persists the current playback offset if it has advanced
// by at least the configured threshold since the last persist (spec.md
// §4.5).
func (c *Controller) PersistPosition(seconds float64) {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur == nil {
		return
	}

	if cur.havePersisted && seconds-cur.lastPersistedSec < c.persistThreshold.Seconds() {
		return
	}

	if err := c.history.RecordPosition(cur.url, seconds); err != nil {
		c.logger.Warn("failed to persist playback position", "url", cur.url, "error", err)
		return
	}
	cur.havePersisted = true
	cur.lastPersistedSec = seconds
}

// surfaceAndReset surfaces a user-visible failure and returns to Idle,
// tearing down whatever resources the failed session held.
func (c *Controller) surfaceAndReset(message string) {
	c.teardown()
	c.setState(StateIdle)
	if c.failures != nil {
		c.failures.SurfaceFailure(message)
	}
}

// teardown implements spec.md §4.5's cancellation & teardown ordering:
// detach renderer, cancel processing task, cleanup HTTP handle, run
// artifact cleanup, release the source-URL access token, clear tracking.
// Each step is idempotent.
func (c *Controller) teardown() {
	c.teardownResourcesOnly()

	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()

	if cur != nil && cur.sourceAccess != nil {
		if err := cur.sourceAccess.Close(); err != nil {
			c.logger.Warn("failed to release source access token", "url", cur.url, "error", err)
		}
	}

	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

// teardownResourcesOnly releases every per-session resource except the
// source-URL access token but keeps c.current (used by escalation, which
// reuses the URL, resume offset, and the still-valid access token).
func (c *Controller) teardownResourcesOnly() {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur == nil {
		return
	}

	if c.renderer != nil {
		c.renderer.Detach()
	}
	if cur.task != nil {
		cur.task.Cancel()
	}
	if cur.streamHandle != nil {
		cur.streamHandle.Cleanup()
	}
	if cur.artifact != nil {
		if err := cur.artifact.Cleanup(); err != nil {
			c.logger.Warn("artifact cleanup failed", "error", err)
		}
	}
}
