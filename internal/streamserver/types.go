package streamserver

// SessionKind tags a registered session (spec.md §3, "session Kind").
type SessionKind int

const (
	SessionFile SessionKind = iota
	SessionHLS
)

// session is the server's internal record for one registration.
type session struct {
	kind             SessionKind
	filePath         string // SessionFile
	directory        string // SessionHLS
	playlistFilename string // SessionHLS
}
