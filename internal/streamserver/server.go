// Package streamserver implements the local HTTP server (spec.md §4.4): a
// process-singleton, loopback-bound listener that serves materialized
// artifacts back to the renderer — a single file with byte-range support, or
// an HLS playlist and its segments. Grounded on godver3-strmr's local
// streaming proxy (other_examples/godver3-strmr__hls.go): a net.Listener
// bound to 127.0.0.1 wrapped by a stdlib http.Server, with Range handling
// done by hand rather than delegated to http.ServeContent, since spec.md's
// exact 200-vs-206 edge case and error-body format are more precise than
// ServeContent's defaults.
package streamserver

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/vplayer/internal/vplayererrors"
)

// Handle is returned by RegisterFile/RegisterHLS (spec.md §3, §4.4).
type Handle struct {
	URL string

	server *Server
	id     string
	once   sync.Once
}

// Cleanup removes the session binding. Idempotent. Does not remove the
// artifact's scratch directory — that is the artifact's own responsibility
// (spec.md §4.4).
func (h *Handle) Cleanup() {
	h.once.Do(func() {
		h.server.mu.Lock()
		delete(h.server.sessions, h.id)
		h.server.mu.Unlock()
	})
}

// StreamURL returns the handle's playable URL, satisfying the session
// controller's narrower Handle seam.
func (h *Handle) StreamURL() string { return h.URL }

// Server is the process-singleton local HTTP server (spec.md §4.4). The
// listener is lazily created on first registration.
type Server struct {
	logger        hclog.Logger
	host          string
	preferredPort int
	allowPortHunt bool
	chunkSize     int

	mu              sync.Mutex
	sessions        map[string]*session
	listener        net.Listener
	httpSrv         *http.Server
	boundURL        string
	totalRegistered int64
	totalFile       int64
	totalHLS        int64
}

// Stats reports session-table counters (SPEC_FULL supplement grounded in
// playbackmodule/session.go's SessionManager.GetStats): a snapshot of
// currently active sessions plus lifetime registration counters, for
// diagnostics/tests only, not a new HTTP route.
type Stats struct {
	ActiveSessions     int
	ActiveFileSessions int
	ActiveHLSSessions  int
	TotalRegistered    int64
	TotalFileSessions  int64
	TotalHLSSessions   int64
}

// Stats returns a snapshot of the session table's current and lifetime
// counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		TotalRegistered:   s.totalRegistered,
		TotalFileSessions: s.totalFile,
		TotalHLSSessions:  s.totalHLS,
	}
	for _, sess := range s.sessions {
		stats.ActiveSessions++
		switch sess.kind {
		case SessionFile:
			stats.ActiveFileSessions++
		case SessionHLS:
			stats.ActiveHLSSessions++
		}
	}
	return stats
}

// New builds a Server. The listener is not created until the first
// registration (spec.md §4.4).
func New(logger hclog.Logger, host string, preferredPort int, allowPortHunt bool, chunkSize int) *Server {
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	return &Server{
		logger:        logger.Named("streamserver"),
		host:          host,
		preferredPort: preferredPort,
		allowPortHunt: allowPortHunt,
		chunkSize:     chunkSize,
		sessions:      make(map[string]*session),
	}
}

// ensureListening lazily binds the listener, guarded by the same mutex that
// guards the session table (spec.md §5).
func (s *Server) ensureListening() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.preferredPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if !s.allowPortHunt {
			return vplayererrors.Wrap(vplayererrors.ListenerUnavailable, "could not bind loopback listener", err)
		}
		ln, err = net.Listen("tcp", fmt.Sprintf("%s:0", s.host))
		if err != nil {
			return vplayererrors.Wrap(vplayererrors.ListenerUnavailable, "could not bind any loopback listener", err)
		}
		s.logger.Warn("preferred port unavailable, bound to a free port instead",
			"preferred_port", s.preferredPort, "bound_addr", ln.Addr().String())
	}

	s.listener = ln
	s.boundURL = fmt.Sprintf("http://%s", ln.Addr().String())

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.httpSrv = &http.Server{Handler: mux}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("stream server exited", "error", err)
		}
	}()

	return nil
}

// RegisterFile implements spec.md §4.4's register_file(path).
func (s *Server) RegisterFile(path string) (*Handle, error) {
	if err := s.ensureListening(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &session{kind: SessionFile, filePath: path}
	s.totalRegistered++
	s.totalFile++
	base := s.boundURL
	s.mu.Unlock()

	return &Handle{URL: fmt.Sprintf("%s/stream/%s", base, id), server: s, id: id}, nil
}

// RegisterHLS implements spec.md §4.4's register_hls(directory, playlist).
func (s *Server) RegisterHLS(directory, playlistFilename string) (*Handle, error) {
	if _, err := os.Stat(filepath.Join(directory, playlistFilename)); err != nil {
		return nil, vplayererrors.Wrap(vplayererrors.InvalidRequest, "HLS directory missing named playlist", err)
	}

	if err := s.ensureListening(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &session{kind: SessionHLS, directory: directory, playlistFilename: playlistFilename}
	s.totalRegistered++
	s.totalHLS++
	base := s.boundURL
	s.mu.Unlock()

	return &Handle{URL: fmt.Sprintf("%s/hls/%s/%s", base, id, playlistFilename), server: s, id: id}, nil
}

// ListSessions returns the ids of every currently registered session — an
// internal diagnostics accessor (SPEC_FULL supplement grounded on
// playbackmodule/session.go's SessionManager.ListActiveSessions), not a new
// HTTP route.
func (s *Server) ListSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close shuts down the listener, if any. Used at process exit.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Close()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed)
		return
	}

	decodedPath, err := decodePath(r.URL.EscapedPath())
	if err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}

	parts := splitPath(decodedPath)
	if len(parts) < 2 {
		writeError(w, http.StatusNotFound)
		return
	}

	switch parts[0] {
	case "stream":
		s.handleStream(w, r, parts[1])
	case "hls":
		s.handleHLS(w, r, parts[1], parts[2:])
	default:
		writeError(w, http.StatusNotFound)
	}
}

func decodePath(raw string) (string, error) {
	return url.QueryUnescape(raw)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == ".." {
			continue // path-traversal guard (spec.md §4.4)
		}
		out = append(out, seg)
	}
	return out
}

func (s *Server) lookupSession(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := s.lookupSession(id)
	if !ok || sess.kind != SessionFile {
		writeError(w, http.StatusNotFound)
		return
	}

	serveFileRange(w, r, sess.filePath, s.chunkSize)
}

func (s *Server) handleHLS(w http.ResponseWriter, r *http.Request, id string, relative []string) {
	sess, ok := s.lookupSession(id)
	if !ok || sess.kind != SessionHLS {
		writeError(w, http.StatusNotFound)
		return
	}

	rel := sess.playlistFilename
	if len(relative) > 0 {
		rel = filepath.Join(relative...)
	}

	target := filepath.Join(sess.directory, rel)

	// Path-traversal guard: resolved file must lie under the session's
	// directory (compare canonical prefixes, spec.md §4.4).
	cleanDir, err1 := filepath.Abs(sess.directory)
	cleanTarget, err2 := filepath.Abs(target)
	if err1 != nil || err2 != nil || !strings.HasPrefix(cleanTarget, cleanDir+string(filepath.Separator)) {
		writeError(w, http.StatusNotFound)
		return
	}

	f, err := os.Open(cleanTarget)
	if err != nil {
		writeError(w, http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", hlsContentType(cleanTarget))
	w.Header().Set("Connection", "close")
	io.Copy(w, f)
}

func hlsContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".mp4", ".m4s":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

func writeError(w http.ResponseWriter, code int) {
	body := http.StatusText(code)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Connection", "close")
	w.WriteHeader(code)
	io.WriteString(w, body)
}
