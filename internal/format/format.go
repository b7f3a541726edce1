// Package format is the format registry: it enumerates recognized media
// extensions and classifies each as preferring direct playback or needing
// processing, for use by the planner's probe-failure heuristic fallback
// (spec.md §4.2, clause 5).
package format

import "strings"

// directExtensions lists extensions the renderer is expected to accept
// unmodified when the probe is unavailable to confirm codec compatibility.
var directExtensions = map[string]bool{
	".mp4": true,
	".m4v": true,
	".mov": true,
	".m4a": true,
}

// recognizedExtensions lists extensions the coordinator knows how to remux
// even without probe confirmation.
var recognizedExtensions = map[string]bool{
	".mkv":  true,
	".avi":  true,
	".webm": true,
	".flv":  true,
	".wmv":  true,
	".ts":   true,
	".m2ts": true,
	".mpg":  true,
	".mpeg": true,
	".3gp":  true,
	".ogv":  true,
}

// PrefersDirect reports whether ext (including the leading dot, any case) is
// in the direct-playable extension set.
func PrefersDirect(ext string) bool {
	return directExtensions[strings.ToLower(ext)]
}

// Recognized reports whether ext is a known container the coordinator can
// remux, even without confirming codecs.
func Recognized(ext string) bool {
	if PrefersDirect(ext) {
		return true
	}
	return recognizedExtensions[strings.ToLower(ext)]
}
