// Package artifact persists pipeline stage outputs.
//
// Artifacts are write-once: if a key already exists, the pipeline trusts it
// as-is and skips the stage entirely, with no staleness check. This is a
// deliberate reproducibility feature, letting an interrupted run resume
// without re-issuing external queries. The flip side is that after fixing a
// logic bug in an earlier stage, the stale downstream artifacts must be
// removed by hand before recomputation happens.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists one JSON document per stage key.
type Store interface {
	// Exists reports whether an artifact was already written for key.
	Exists(key string) bool

	// Load decodes the artifact stored under key into v.
	Load(key string, v any) error

	// Save encodes v and persists it under key. The write is atomic: a
	// failed or interrupted save never leaves a readable partial artifact.
	Save(key string, v any) error
}

// FSStore keeps each artifact as an indented JSON file under a directory,
// so a run stays auditable with nothing but a text editor.
type FSStore struct {
	dir string
}

// NewFSStore creates the directory if needed and returns a store over it.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create dir %s: %w", dir, err)
	}
	return &FSStore{dir: dir}, nil
}

// Path returns the file an artifact key maps to.
func (s *FSStore) Path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FSStore) Exists(key string) bool {
	_, err := os.Stat(s.Path(key))
	return err == nil
}

func (s *FSStore) Load(key string, v any) error {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		return fmt.Errorf("artifact: load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("artifact: decode %s: %w", key, err)
	}
	return nil
}

func (s *FSStore) Save(key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode %s: %w", key, err)
	}

	// Write to a temp file in the same directory, then rename over the
	// final path. Rename is atomic, so readers never see a torn artifact.
	tmp, err := os.CreateTemp(s.dir, key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("artifact: temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("artifact: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("artifact: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("artifact: commit %s: %w", key, err)
	}
	return nil
}

// MemStore is an in-memory Store for tests and dry runs.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (s *MemStore) Exists(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

func (s *MemStore) Load(key string, v any) error {
	s.mu.RLock()
	data, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("artifact: %s not found", key)
	}
	return json.Unmarshal(data, v)
}

func (s *MemStore) Save(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = data
	s.mu.Unlock()
	return nil
}
