// Command vplayer is the process entrypoint for the adaptive playback
// preparation pipeline (spec.md §1): it wires the media inspector, playback
// planner, processing coordinator, local HTTP server, resume history store,
// and playback session controller together, then loads whatever media path
// is given on the command line. The GUI, keyboard handling, and the
// renderer itself are external collaborators (spec.md §1's explicit
// non-goals for this core) — main wires a logging stand-in renderer so the
// pipeline is runnable and inspectable standalone. Grounded on the
// teacher's cmd/viewra/main.go: load config, wire subsystems, install a
// signal-driven graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/vplayer/internal/binlocate"
	"github.com/mantonx/vplayer/internal/config"
	"github.com/mantonx/vplayer/internal/coordinator"
	"github.com/mantonx/vplayer/internal/history"
	"github.com/mantonx/vplayer/internal/inspector"
	"github.com/mantonx/vplayer/internal/planner"
	"github.com/mantonx/vplayer/internal/session"
	"github.com/mantonx/vplayer/internal/streamserver"
)

// loggingRenderer stands in for the GUI-embedded renderer (spec.md §1's
// out-of-scope "renderer itself"). It only logs, so the pipeline can be
// exercised end to end without a real playback surface.
type loggingRenderer struct {
	logger hclog.Logger
}

func (r *loggingRenderer) Attach(url string, seekTo *float64) error {
	if seekTo != nil {
		r.logger.Info("renderer attach", "url", url, "seek_seconds", *seekTo)
	} else {
		r.logger.Info("renderer attach", "url", url)
	}
	return nil
}

func (r *loggingRenderer) Detach() {
	r.logger.Info("renderer detach")
}

// loggingFailureSurfacer stands in for the GUI's failure dialog.
type loggingFailureSurfacer struct {
	logger hclog.Logger
}

func (f *loggingFailureSurfacer) SurfaceFailure(message string) {
	f.logger.Error("playback failure surfaced to user", "message", message)
}

func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "vplayer",
		Level: hclog.LevelFromString(envOr("VPLAYER_LOG_LEVEL", "info")),
	})

	configPath := os.Getenv("VPLAYER_CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Warn("failed to load configuration, using defaults", "path", configPath, "error", err)
		cfg = config.Default()
	}

	ffmpegPath := func() (string, error) {
		return binlocate.Resolve("ffmpeg", "VPLAYER_FFMPEG_PATH", "FFMPEG_PATH", cfg.Paths.FFmpegPath)
	}
	ffprobePath := func() (string, error) {
		return binlocate.Resolve("ffprobe", "VPLAYER_FFPROBE_PATH", "FFPROBE_PATH", cfg.Paths.FFprobePath)
	}

	insp := inspector.New(logger, ffprobePath)
	plan := planner.New(logger, insp)
	coord := coordinator.New(logger, ffmpegPath, cfg.Paths.ScratchRoot, cfg.HLS.PollInterval, cfg.HLS.ReadyTimeout, cfg.HLS.SegmentTime)
	server := streamserver.New(logger, cfg.Server.Host, cfg.Server.Port, cfg.Server.AllowPortHunt, cfg.Server.ChunkSize)

	if cfg.Paths.HistoryFile == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			cfg.Paths.HistoryFile = dir + "/vplayer/history.json"
		} else {
			cfg.Paths.HistoryFile = "vplayer-history.json"
		}
	}

	historyStore, err := history.Open(logger, cfg.Paths.HistoryFile)
	if err != nil {
		logger.Error("failed to open history store", "path", cfg.Paths.HistoryFile, "error", err)
		os.Exit(1)
	}

	renderer := &loggingRenderer{logger: logger.Named("renderer")}
	failures := &loggingFailureSurfacer{logger: logger.Named("failures")}

	controller := session.New(
		logger,
		plan,
		coord,
		session.NewStreamServerAdapter(server),
		historyStore,
		renderer,
		failures,
		nil, // default SourceAccessor: os.Open the source URL directly
		cfg.Session.ReplayCountdown,
		cfg.Session.PersistThreshold,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdownCh
		logger.Info("shutting down")
		controller.Stop()
		if err := server.Close(); err != nil {
			logger.Warn("stream server close error", "error", err)
		}
		cancel()
	}()

	if len(os.Args) > 1 {
		path := os.Args[1]
		logger.Info("loading media", "path", path)
		controller.Load(ctx, path)
	} else {
		fmt.Fprintln(os.Stderr, "usage: vplayer <media-path>")
	}

	<-ctx.Done()
	time.Sleep(50 * time.Millisecond) // let in-flight teardown log lines flush
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
