package inspector

// StreamKind is the coarse codec_type classification (spec.md §3).
type StreamKind string

const (
	StreamVideo StreamKind = "video"
	StreamAudio StreamKind = "audio"
	StreamOther StreamKind = "other"
)

// MediaStreamInfo describes one stream reported by the probe.
type MediaStreamInfo struct {
	Kind       StreamKind
	CodecName  string // always lowercase
	Profile    string // optional
	Width      int    // video only, 0 if unset
	Height     int    // video only, 0 if unset
	Channels   int    // audio only, 0 if unset
	SampleRate int    // audio only, 0 if unset
	BitRate    *int64 // optional, nil if the probe field was absent or unparseable
	Index      int    // absolute stream index within the input
}

// MediaProfile is the media inspector's output (spec.md §3).
//
// Invariant: at most one video stream is marked primary (Video, if non-nil,
// is that stream); AudioStreams preserves the probe's stream order.
type MediaProfile struct {
	SourceURL   string
	FormatNames string // comma-separated list, e.g. "mov,mp4,m4a"
	Video       *MediaStreamInfo
	AudioStreams []MediaStreamInfo
}
