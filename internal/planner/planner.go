// Package planner implements the playback planner (spec.md §4.2): it maps a
// MediaProfile to a PlaybackPlan using the classification tables and decision
// procedure spec.md declares authoritative. The planner is pure with respect
// to its fixed classification tables and whatever the inspector reports; its
// only I/O is delegating to the inspector.
package planner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/vplayer/internal/format"
	"github.com/mantonx/vplayer/internal/inspector"
)

var directVideoCodecs = map[string]bool{
	"h264": true, "avc1": true, "hev1": true, "hevc": true,
}

var directAudioCodecs = map[string]bool{
	"aac": true, "mp3": true, "ac3": true, "eac3": true,
}

var directContainerTokens = map[string]bool{
	"mov": true, "mp4": true, "m4a": true, "m4v": true,
	"ismv": true, "isom": true, "dash": true, "quicktime": true,
}

// Probe is the subset of the media inspector the planner depends on, seamed
// as an interface so tests can supply canned profiles without invoking any
// subprocess.
type Probe interface {
	Profile(ctx context.Context, url string) (*inspector.MediaProfile, error)
}

// Planner implements spec.md §4.2.
type Planner struct {
	logger hclog.Logger
	probe  Probe
}

// New builds a Planner backed by probe.
func New(logger hclog.Logger, probe Probe) *Planner {
	return &Planner{logger: logger.Named("planner"), probe: probe}
}

// Plan implements spec.md §4.2's plan(url) operation.
func (p *Planner) Plan(ctx context.Context, url string) Plan {
	profile, err := p.probe.Profile(ctx, url)
	if err != nil {
		p.logger.Debug("probe unavailable, using heuristic fallback", "url", url, "error", err)
		return heuristicFallback(url)
	}
	return classify(profile)
}

// ForcedTranscodePlan implements spec.md §4.2's forced_transcode_plan(url)
// operation: it skips the direct/remux clauses and always yields Transcode,
// used after a renderer failure on a direct or remuxed stream.
func (p *Planner) ForcedTranscodePlan(ctx context.Context, url string) Plan {
	profile, err := p.probe.Profile(ctx, url)
	if err != nil {
		return fixedFallbackTranscode(url)
	}
	return Plan{Kind: PlanTranscode, Transcode: buildTranscodeParams(profile)}
}

func videoOK(profile *inspector.MediaProfile) bool {
	return profile.Video != nil && directVideoCodecs[profile.Video.CodecName]
}

func audioOK(profile *inspector.MediaProfile) bool {
	for _, a := range profile.AudioStreams {
		if directAudioCodecs[a.CodecName] {
			return true
		}
	}
	return false
}

func containerOK(profile *inspector.MediaProfile) bool {
	for _, tok := range strings.Split(profile.FormatNames, ",") {
		if directContainerTokens[strings.TrimSpace(tok)] {
			return true
		}
	}
	return false
}

// firstDirectAudioIndex returns the index of the first audio stream whose
// codec is in the direct-playable set, and whether one was found.
func firstDirectAudioIndex(profile *inspector.MediaProfile) (int, bool) {
	for _, a := range profile.AudioStreams {
		if directAudioCodecs[a.CodecName] {
			return a.Index, true
		}
	}
	return 0, false
}

// classify implements the decision procedure of spec.md §4.2 (first matching
// clause wins).
func classify(profile *inspector.MediaProfile) Plan {
	vOK := videoOK(profile)
	aOK := audioOK(profile)
	cOK := containerOK(profile)

	if vOK && aOK && cOK {
		return Plan{Kind: PlanDirect, DirectURL: profile.SourceURL}
	}

	if vOK && aOK && !cOK {
		videoIdx := profile.Video.Index
		audioIdx, _ := firstDirectAudioIndex(profile)
		return Plan{
			Kind: PlanRemux,
			Remux: &RemuxRequest{
				SourceURL:          profile.SourceURL,
				TargetContainer:    "mp4",
				VideoStreamIndex:   &videoIdx,
				AudioStreamIndex:   &audioIdx,
				OriginalVideoCodec: profile.Video.CodecName,
			},
		}
	}

	return Plan{Kind: PlanTranscode, Transcode: buildTranscodeParams(profile)}
}

// buildTranscodeParams implements spec.md §4.2 clause 4.
func buildTranscodeParams(profile *inspector.MediaProfile) *TranscodeRequest {
	width, height := 1920, 1080
	if profile.Video != nil {
		if profile.Video.Width > 0 {
			width = profile.Video.Width
		}
		if profile.Video.Height > 0 {
			height = profile.Video.Height
		}
	}

	maxDim := width
	if height > maxDim {
		maxDim = height
	}

	preferHEVC := maxDim >= 1920 || width >= 1920 || height >= 1080

	var videoCodec string
	var videoBitrate, videoBuffer int
	switch {
	case maxDim >= 3800:
		if preferHEVC {
			videoBitrate = 25000
		} else {
			videoBitrate = 18000
		}
	case maxDim >= 2500:
		if preferHEVC {
			videoBitrate = 18000
		} else {
			videoBitrate = 12000
		}
	case maxDim >= 1920:
		if preferHEVC {
			videoBitrate = 12000
		} else {
			videoBitrate = 10000
		}
	default:
		if preferHEVC {
			videoBitrate = 8000
		} else {
			videoBitrate = 6000
		}
	}
	videoBuffer = videoBitrate * 2

	if preferHEVC {
		videoCodec = "hevc"
	} else {
		videoCodec = "h264"
	}

	maxWidthForCodec := 1920
	if preferHEVC {
		maxWidthForCodec = 3840
	}

	scaleFilter := ""
	if width > maxWidthForCodec {
		scaleFilter = fmt.Sprintf("scale=%d:-2", maxWidthForCodec)
	}

	sourceURL := ""
	if profile != nil {
		sourceURL = profile.SourceURL
	}

	return &TranscodeRequest{
		SourceURL:            sourceURL,
		VideoCodec:           videoCodec,
		AudioCodec:           "aac",
		Container:            "mp4",
		VideoBitrate:         fmt.Sprintf("%dk", videoBitrate),
		VideoBufferSize:      fmt.Sprintf("%dk", videoBuffer),
		AudioBitrate:         "192k",
		ScaleFilter:          scaleFilter,
		HardwareAcceleration: true,
		OutputMode:           OutputHLS,
	}
}

// heuristicFallback implements spec.md §4.2 clause 5: when probing fails,
// classify purely by extension.
func heuristicFallback(url string) Plan {
	ext := filepath.Ext(url)

	if format.PrefersDirect(ext) {
		return Plan{Kind: PlanDirect, DirectURL: url}
	}

	if format.Recognized(ext) {
		return Plan{
			Kind: PlanRemux,
			Remux: &RemuxRequest{
				SourceURL:       url,
				TargetContainer: "mp4",
			},
		}
	}

	return fixedFallbackTranscode(url)
}

// fixedFallbackTranscode is the fixed-parameter Transcode plan used by both
// the probe-failure heuristic (clause 5's else branch) and forced-transcode
// when the probe is unavailable.
func fixedFallbackTranscode(url string) Plan {
	return Plan{
		Kind: PlanTranscode,
		Transcode: &TranscodeRequest{
			SourceURL:            url,
			VideoCodec:           "h264",
			AudioCodec:           "aac",
			Container:            "mp4",
			VideoBitrate:         "10000k",
			VideoBufferSize:      "20000k",
			AudioBitrate:         "192k",
			HardwareAcceleration: true,
			OutputMode:           OutputHLS,
		},
	}
}
