package artifact

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleStore keeps artifacts in a Pebble key-value database. It trades the
// FSStore's text-editor auditability for compact storage when the holder
// tables get large.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (or creates) a Pebble database at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("artifact: open pebble db %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

// Close releases the underlying database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) Exists(key string) bool {
	_, closer, err := s.db.Get([]byte(key))
	if err != nil {
		return false
	}
	closer.Close()
	return true
}

func (s *PebbleStore) Load(key string, v any) error {
	data, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return fmt.Errorf("artifact: %s not found", key)
		}
		return fmt.Errorf("artifact: load %s: %w", key, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("artifact: decode %s: %w", key, err)
	}
	return nil
}

func (s *PebbleStore) Save(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("artifact: encode %s: %w", key, err)
	}
	// Sync: a stage artifact must be durable before the stage is considered
	// complete, otherwise a crash could leave a later stage trusting data
	// that never hit disk.
	if err := s.db.Set([]byte(key), data, pebble.Sync); err != nil {
		return fmt.Errorf("artifact: save %s: %w", key, err)
	}
	return nil
}
