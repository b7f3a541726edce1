// Package inspector implements the media inspector (spec.md §4.1): it
// invokes the external probe binary, decodes its JSON output, and builds a
// MediaProfile. Numeric probe fields that fail to parse are tolerated by
// falling back to nil, matching the ffprobe JSON quirk (seen throughout the
// teacher's content_analyzer.go and core_plugin.go) where fields like
// bit_rate are sometimes emitted as strings.
package inspector

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/vplayer/internal/vplayererrors"
)

// probeFormat mirrors ffprobe's "format" JSON section.
type probeFormat struct {
	FormatName string `json:"format_name"`
}

// probeStream mirrors ffprobe's "streams[]" JSON section. BitRate and the
// other numeric-or-string fields are decoded as flexNumber to tolerate
// either representation.
type probeStream struct {
	Index      int        `json:"index"`
	CodecType  string     `json:"codec_type"`
	CodecName  string     `json:"codec_name"`
	Profile    string     `json:"profile"`
	Width      flexNumber `json:"width"`
	Height     flexNumber `json:"height"`
	Channels   flexNumber `json:"channels"`
	SampleRate flexNumber `json:"sample_rate"`
	BitRate    flexNumber `json:"bit_rate"`
}

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

// flexNumber decodes a JSON number OR a JSON string containing a number,
// tolerating garbage by leaving Valid false rather than erroring the whole
// document.
type flexNumber struct {
	Value int64
	Valid bool
}

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		f.Valid = false
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Tolerate non-numeric probe fields (e.g. "N/A") by leaving unset
		// rather than failing JSON decode of the whole document.
		f.Valid = false
		return nil
	}
	f.Value = n
	f.Valid = true
	return nil
}

func (f flexNumber) int() int {
	if !f.Valid {
		return 0
	}
	return int(f.Value)
}

func (f flexNumber) ptr() *int64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// Inspector probes files with an external binary. It retains no state
// between calls (spec.md §4.1).
type Inspector struct {
	logger     hclog.Logger
	ffprobePath func() (string, error)
}

// New builds an Inspector. resolvePath is called on every Profile invocation
// so binary-path resolution changes (e.g. via config reload) take effect
// without reconstructing the Inspector.
func New(logger hclog.Logger, resolvePath func() (string, error)) *Inspector {
	return &Inspector{
		logger:      logger.Named("inspector"),
		ffprobePath: resolvePath,
	}
}

// Profile invokes the probe binary against url and builds a MediaProfile.
// Non-zero exit or unparseable JSON yields a ProbeUnavailable error.
func (i *Inspector) Profile(ctx context.Context, url string) (*MediaProfile, error) {
	ffprobe, err := i.ffprobePath()
	if err != nil {
		return nil, vplayererrors.Wrap(vplayererrors.ProbeUnavailable, "ffprobe binary not found", err)
	}

	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		url,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		i.logger.Warn("probe failed", "url", url, "error", err, "stderr", stderr.String())
		return nil, vplayererrors.Wrap(vplayererrors.ProbeUnavailable, "probe process failed", err)
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		i.logger.Warn("probe output unparseable", "url", url, "error", err)
		return nil, vplayererrors.Wrap(vplayererrors.ProbeUnavailable, "probe output not valid JSON", err)
	}

	profile := &MediaProfile{
		SourceURL:   url,
		FormatNames: out.Format.FormatName,
	}

	for _, s := range out.Streams {
		kind := StreamOther
		switch s.CodecType {
		case "video":
			kind = StreamVideo
		case "audio":
			kind = StreamAudio
		}

		info := MediaStreamInfo{
			Kind:       kind,
			CodecName:  strings.ToLower(s.CodecName),
			Profile:    s.Profile,
			BitRate:    s.BitRate.ptr(),
			Index:      s.Index,
		}

		switch kind {
		case StreamVideo:
			info.Width = s.Width.int()
			info.Height = s.Height.int()
			if profile.Video == nil {
				v := info
				profile.Video = &v
			}
		case StreamAudio:
			info.Channels = s.Channels.int()
			info.SampleRate = s.SampleRate.int()
			profile.AudioStreams = append(profile.AudioStreams, info)
		}
	}

	return profile, nil
}
