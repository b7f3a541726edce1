package session

import "github.com/mantonx/vplayer/internal/streamserver"

// streamServerAdapter narrows *streamserver.Server to the StreamServer seam.
// A plain interface assertion doesn't work here because *streamserver.Server
// returns *streamserver.Handle, a concrete type, not the session package's
// own Handle interface.
type streamServerAdapter struct {
	s *streamserver.Server
}

// NewStreamServerAdapter wraps a *streamserver.Server for use by Controller.
func NewStreamServerAdapter(s *streamserver.Server) StreamServer {
	return &streamServerAdapter{s: s}
}

func (a *streamServerAdapter) RegisterFile(path string) (Handle, error) {
	return a.s.RegisterFile(path)
}

func (a *streamServerAdapter) RegisterHLS(directory, playlistFilename string) (Handle, error) {
	return a.s.RegisterHLS(directory, playlistFilename)
}
