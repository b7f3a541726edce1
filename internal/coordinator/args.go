package coordinator

import (
	"fmt"
	"path/filepath"

	"github.com/mantonx/vplayer/internal/planner"
)

// buildRemuxArgs constructs the processor argument vector for a remux job
// (spec.md §4.3). If req provides explicit stream indices from the probe,
// they are used as absolute indices; otherwise the default selectors
// 0:v:0 / 0:a:0? are used (the "?" makes audio optional).
func buildRemuxArgs(req *planner.RemuxRequest, scratchDir string) (args []string, outputPath string) {
	outputPath = filepath.Join(scratchDir, "output.mp4")

	videoSelector := "0:v:0"
	if req.VideoStreamIndex != nil {
		videoSelector = fmt.Sprintf("0:%d", *req.VideoStreamIndex)
	}
	audioSelector := "0:a:0?"
	if req.AudioStreamIndex != nil {
		audioSelector = fmt.Sprintf("0:%d", *req.AudioStreamIndex)
	}

	args = []string{
		"-hide_banner", "-loglevel", "warning",
		"-y",
		"-i", req.SourceURL,
		"-map", videoSelector,
		"-map", audioSelector,
		"-c:v", "copy", "-c:a", "copy",
		"-movflags", "faststart",
	}
	if req.OriginalVideoCodec == "hevc" || req.OriginalVideoCodec == "hev1" {
		args = append(args, "-tag:v", "hvc1")
	}
	args = append(args, outputPath)
	return args, outputPath
}

// transcodeOutputPaths describes where a transcode job's output(s) land.
type transcodeOutputPaths struct {
	OutputFile       string // progressive-MP4
	PlaylistFile     string // HLS
	SegmentPattern   string // HLS
}

// buildTranscodeArgs constructs the processor argument vector for a
// transcode job (spec.md §4.3). encoder is the concrete video encoder name
// selected by hardware capability probing (e.g. "h264_videotoolbox" or
// "libx264"); hwAccelFlag, if non-empty, is the decode-side hwaccel value
// (e.g. "videotoolbox") inserted immediately after the log flags.
func buildTranscodeArgs(req *planner.TranscodeRequest, encoder, hwAccelFlag string, scratchDir string, hlsSegmentTime int) ([]string, transcodeOutputPaths) {
	args := []string{"-hide_banner", "-loglevel", "info"}
	if hwAccelFlag != "" {
		args = append(args, "-hwaccel", hwAccelFlag)
	}
	args = append(args,
		"-y",
		"-i", req.SourceURL,
		"-map", "0:v:0",
		"-map", "0:a:0?",
		"-c:v", encoder,
		"-b:v", req.VideoBitrate,
		"-maxrate", req.VideoBitrate,
		"-bufsize", req.VideoBufferSize,
		"-pix_fmt", "yuv420p",
	)
	if req.VideoCodec == "hevc" {
		args = append(args, "-tag:v", "hvc1")
	}
	if req.ScaleFilter != "" {
		args = append(args, "-vf", req.ScaleFilter)
	}
	args = append(args, "-c:a", req.AudioCodec, "-b:a", req.AudioBitrate)

	var out transcodeOutputPaths
	switch req.OutputMode {
	case planner.OutputProgressiveMP4:
		out.OutputFile = filepath.Join(scratchDir, "output.mp4")
		args = append(args, "-movflags", "faststart", out.OutputFile)
	case planner.OutputHLS:
		out.PlaylistFile = filepath.Join(scratchDir, "master.m3u8")
		out.SegmentPattern = filepath.Join(scratchDir, "segment_%05d.ts")
		args = append(args,
			"-f", "hls",
			"-hls_time", fmt.Sprintf("%d", hlsSegmentTime),
			"-hls_playlist_type", "event",
			"-hls_flags", "independent_segments+append_list",
			"-hls_segment_filename", out.SegmentPattern,
			out.PlaylistFile,
		)
	}

	return args, out
}
