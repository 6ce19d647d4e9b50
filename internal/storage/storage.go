// Package storage keeps track of the ICC profiles in the profile directory.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/1broseidon/iccsync/internal/edid"
	"github.com/1broseidon/iccsync/internal/icc"
)

const (
	profileExt    = ".icc"
	idPrefix      = "icc-"
	edidPrefix    = "edid-"
	debounceDelay = 100 * time.Millisecond
)

// EventType distinguishes storage events
type EventType int

const (
	ProfileAdded EventType = iota
	ProfileRemoved
)

func (t EventType) String() string {
	if t == ProfileRemoved {
		return "removed"
	}
	return "added"
}

// Event reports a profile file appearing or going away
type Event struct {
	Type EventType
	Path string
	// ID is "icc-" followed by the profile ID
	ID string
}

// Synthesizer builds a profile for a display identity
type Synthesizer func(id edid.Identity) (*icc.Profile, error)

// Storage indexes *.icc files in one directory. The fsnotify goroutine only
// reports changed paths on Changes; the index itself is updated by Scan,
// Handle and EnsureProfile, which must be called from a single goroutine.
type Storage struct {
	dir       string
	synth     Synthesizer
	logger    *slog.Logger
	fsWatcher *fsnotify.Watcher
	changes   chan string
	done      chan struct{}
	stopOnce  sync.Once

	// path -> ID
	known map[string]string

	debounce   map[string]*time.Timer
	debounceMu sync.Mutex
}

// New creates dir if needed and prepares a watcher for it
func New(dir string, synth Synthesizer, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile directory: %w", err)
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Storage{
		dir:       dir,
		synth:     synth,
		logger:    logger,
		fsWatcher: fsWatcher,
		changes:   make(chan string, 64),
		done:      make(chan struct{}),
		known:     make(map[string]string),
		debounce:  make(map[string]*time.Timer),
	}, nil
}

// Dir returns the watched directory
func (s *Storage) Dir() string {
	return s.dir
}

// Changes delivers paths of profile files that changed on disk. Pass them
// to Handle.
func (s *Storage) Changes() <-chan string {
	return s.changes
}

// Start begins watching the directory
func (s *Storage) Start() error {
	if err := s.fsWatcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	go s.processEvents()
	return nil
}

// Stop stops watching
func (s *Storage) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		_ = s.fsWatcher.Close()

		s.debounceMu.Lock()
		for _, timer := range s.debounce {
			timer.Stop()
		}
		s.debounceMu.Unlock()
	})
}

func (s *Storage) processEvents() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.fsWatcher.Events:
			if !ok {
				return
			}
			if !isProfilePath(event.Name) {
				continue
			}
			s.logger.Debug("profile directory event", "op", event.Op.String(), "path", event.Name)
			s.debounceEvent(event.Name)
		case err, ok := <-s.fsWatcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("profile watcher error", "error", err)
		}
	}
}

// debounceEvent coalesces bursts of events for the same path
func (s *Storage) debounceEvent(path string) {
	s.debounceMu.Lock()
	defer s.debounceMu.Unlock()

	if timer, ok := s.debounce[path]; ok {
		timer.Stop()
	}
	s.debounce[path] = time.AfterFunc(debounceDelay, func() {
		s.debounceMu.Lock()
		delete(s.debounce, path)
		s.debounceMu.Unlock()

		select {
		case s.changes <- path:
		case <-s.done:
		}
	})
}

func isProfilePath(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, profileExt) && !strings.HasPrefix(name, ".")
}

// Scan indexes every profile already in the directory
func (s *Storage) Scan() []Event {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("failed to list profile directory", "dir", s.dir, "error", err)
		return nil
	}

	var paths []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && isProfilePath(entry.Name()) {
			paths = append(paths, filepath.Join(s.dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	var events []Event
	for _, path := range paths {
		events = append(events, s.Handle(path)...)
	}
	return events
}

// Handle re-examines path and returns the resulting events: an add for a
// new profile, a remove for one that is gone, or both when the contents
// were replaced.
func (s *Storage) Handle(path string) []Event {
	if !isProfilePath(path) {
		return nil
	}
	oldID, known := s.known[path]

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if !known {
			return nil
		}
		delete(s.known, path)
		return []Event{{Type: ProfileRemoved, Path: path, ID: oldID}}
	}
	if err != nil {
		s.logger.Warn("failed to read profile", "path", path, "error", err)
		return nil
	}

	profile, err := icc.Parse(data)
	if err != nil {
		// likely still being written; a later event retries
		s.logger.Debug("ignoring invalid profile", "path", path, "error", err)
		return nil
	}
	id := idPrefix + profile.ID()

	var events []Event
	if known {
		if oldID == id {
			return nil
		}
		events = append(events, Event{Type: ProfileRemoved, Path: path, ID: oldID})
	}
	s.known[path] = id
	return append(events, Event{Type: ProfileAdded, Path: path, ID: id})
}

// ProfileID returns the ID of an indexed profile file
func (s *Storage) ProfileID(path string) (string, bool) {
	id, ok := s.known[path]
	return id, ok
}

// Len returns the number of indexed profiles
func (s *Storage) Len() int {
	return len(s.known)
}

// EdidProfilePath returns where the synthesized profile for id lives
func (s *Storage) EdidProfilePath(id edid.Identity) string {
	return filepath.Join(s.dir, edidPrefix+id.ContentID+profileExt)
}

// EnsureProfile writes the synthesized profile for id unless one is already
// indexed. Synthesis failures are logged and produce no events.
func (s *Storage) EnsureProfile(id edid.Identity) []Event {
	path := s.EdidProfilePath(id)
	if _, ok := s.known[path]; ok {
		s.logger.Debug("profile for EDID already present", "path", path)
		return nil
	}
	if s.synth == nil {
		return nil
	}

	profile, err := s.synth(id)
	if err != nil {
		s.logger.Warn("profile for EDID was not created", "content_id", id.ContentID, "error", err)
		return nil
	}
	if err := writeAtomic(path, profile.Bytes()); err != nil {
		s.logger.Error("failed to write profile", "path", path, "error", err)
		return nil
	}
	s.logger.Info("created profile from EDID", "path", path, "model", id.Model)
	return s.Handle(path)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".profile-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
