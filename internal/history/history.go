// Package history implements the resume/history interface consumed (not
// implemented) by the core per spec.md §6: a flat JSON file recording
// playback bookmarks and per-path offsets. Writes are atomic (write-then-
// rename), grounded on xg2g's internal/jobs/write.go renameio pattern —
// the teacher's own tree has no atomic-file-write primitive anywhere, so
// this component is enriched from the rest of the retrieval pack instead.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/hashicorp/go-hclog"
)

// Entry is one row of the "entries" array in history.json (spec.md §6).
type Entry struct {
	Bookmark string `json:"bookmark"`
	Title    string `json:"title"`
	Path     string `json:"path"`
}

// document is the on-disk shape of history.json (spec.md §6).
type document struct {
	Entries             []Entry            `json:"entries"`
	LastPlayedPath      *string            `json:"lastPlayedPath"`
	LastPlaybackSeconds *float64           `json:"lastPlaybackSeconds"`
	PlaybackOffsets     map[string]float64 `json:"playbackOffsets"`
}

// Store is the resume/history interface the playback session controller
// consumes (spec.md §4.5, §6). It is safe for concurrent use.
type Store struct {
	logger hclog.Logger
	path   string

	mu  sync.Mutex
	doc document
}

// Open loads path if it exists, or starts from an empty document if it does
// not (a fresh install has no history file yet).
func Open(logger hclog.Logger, path string) (*Store, error) {
	s := &Store{
		logger: logger.Named("history"),
		path:   path,
		doc:    document{PlaybackOffsets: map[string]float64{}},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, err
	}
	if s.doc.PlaybackOffsets == nil {
		s.doc.PlaybackOffsets = map[string]float64{}
	}
	return s, nil
}

// ResumeFor implements spec.md §6's resume_for(url) -> Option<seconds>: it
// reads playbackOffsets[path], falling back to lastPlaybackSeconds iff
// lastPlayedPath == path.
func (s *Store) ResumeFor(path string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if secs, ok := s.doc.PlaybackOffsets[path]; ok {
		return secs, true
	}
	if s.doc.LastPlayedPath != nil && *s.doc.LastPlayedPath == path && s.doc.LastPlaybackSeconds != nil {
		return *s.doc.LastPlaybackSeconds, true
	}
	return 0, false
}

// RecordPosition implements spec.md §6's record_position(url, seconds): it
// updates playbackOffsets[path] and the last-played fields, then persists
// atomically.
func (s *Store) RecordPosition(path string, seconds float64) error {
	s.mu.Lock()
	s.doc.PlaybackOffsets[path] = seconds
	p := path
	sec := seconds
	s.doc.LastPlayedPath = &p
	s.doc.LastPlaybackSeconds = &sec
	snapshot := s.doc
	s.mu.Unlock()

	return s.persist(snapshot)
}

// persist writes the document atomically (write-then-rename), matching
// xg2g's writeM3U/writeXMLTV renameio usage.
func (s *Store) persist(doc document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	pendingFile, err := renameio.NewPendingFile(s.path)
	if err != nil {
		return err
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			s.logger.Debug("cleanup pending history file", "error", err)
		}
	}()

	enc := json.NewEncoder(pendingFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}

	return pendingFile.CloseAtomicallyReplace()
}
