// Package manifest persists the commit point of a graph directory.
//
// Log appends become durable in two steps: each log flushes and
// reports its byte size, then a new manifest recording those sizes is
// written atomically (temp file, rename, directory sync) and the
// CURRENT pointer is swung to it. A crash between the steps leaves the
// previous manifest in place, and reopening truncates every log back
// to its recorded size.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hupe1980/segdag/model"
)

const (
	ManifestFileName = "MANIFEST"
	CurrentFileName  = "CURRENT"
	CurrentVersion   = 1
)

// Manifest describes the durable state of a graph at one flush point.
type Manifest struct {
	Version         int           `json:"version"`
	ID              uint64        `json:"id"`
	GraphVersion    model.VerLink `json:"graph_version"`
	SegmentsLogSize int64         `json:"segments_log_size"`
	NamesLogSize    int64         `json:"names_log_size"`
}

// Store manages the manifest files of one directory and their atomic
// updates.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a manifest store for dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Load returns the manifest the CURRENT pointer names. When no
// manifest exists yet it returns a fresh one with ID zero; callers
// treat ID zero as an uninitialized graph directory.
func (s *Store) Load() (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := os.ReadFile(filepath.Join(s.dir, CurrentFileName)) //nolint:gosec // G304: Path is configurable
	if os.IsNotExist(err) {
		return &Manifest{Version: CurrentVersion, GraphVersion: model.NewVerLink()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current pointer: %w", err)
	}

	name := string(current)
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid current pointer: %q", name)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name)) //nolint:gosec // G304: Path is configurable
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", name, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", name, err)
	}

	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported manifest version: %d (expected %d)", m.Version, CurrentVersion)
	}

	return &m, nil
}

// Save atomically writes a new numbered manifest and swings the
// CURRENT pointer to it, bumping m.ID. Older manifest files are
// removed best effort once the pointer is durable.
func (s *Store) Save(m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create manifest dir: %w", err)
	}

	m.Version = CurrentVersion
	m.ID++

	filename := fmt.Sprintf("%s-%06d.json", ManifestFileName, m.ID)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	if err := s.writeAtomic(filename, data); err != nil {
		return err
	}

	if err := s.writeAtomic(CurrentFileName, []byte(filename)); err != nil {
		return err
	}

	s.removeStale(filename)

	return nil
}

// writeAtomic writes data under name via a synced temp file and a
// rename, then syncs the directory so the rename survives a crash.
func (s *Store) writeAtomic(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // G304: Path is configurable
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", name, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s: %w", name, err)
	}

	return s.syncDir()
}

// removeStale deletes numbered manifests other than keep. Failures are
// ignored; stale files only cost disk space.
func (s *Store) removeStale(keep string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if name == keep || !strings.HasPrefix(name, ManifestFileName+"-") {
			continue
		}
		_ = os.Remove(filepath.Join(s.dir, name))
	}
}

func (s *Store) syncDir() error {
	f, err := os.Open(s.dir) //nolint:gosec // G304: Path is configurable
	if err != nil {
		return fmt.Errorf("failed to open manifest dir: %w", err)
	}
	defer f.Close()

	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync manifest dir: %w", err)
	}

	return nil
}
