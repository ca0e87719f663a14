// Package store persists a fully derived registry between the build phase
// and later query phases.
package store

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/zeebo/blake3"

	"github.com/ykrivopalov/objdeps/pkg/registry"
)

var (
	// ErrNotFound indicates the store file does not exist; query commands
	// cannot proceed without a prior build.
	ErrNotFound = errors.New("registry store not found")

	// ErrCorrupt indicates the store file exists but cannot be decoded or
	// fails its integrity check.
	ErrCorrupt = errors.New("registry store corrupt")
)

// Store serializes a registry as one opaque blob. Write-once per build,
// read-only afterwards; the core derivation code has no knowledge of it.
type Store interface {
	Save(reg *registry.Registry) error
	Load() (*registry.Registry, error)
}

// envelope wraps the registry blob with a BLAKE3 content hash so that a
// truncated or hand-edited store is detected at load time.
type envelope struct {
	Hash      string          `json:"hash"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// FileStore keeps the registry in a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes the registry to the backing file, replacing any previous
// contents.
func (s *FileStore) Save(reg *registry.Registry) error {
	data, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	env := envelope{
		Hash:      hashHex(data),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	out, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode store envelope: %w", err)
	}
	if err := os.WriteFile(s.path, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// Load reads the registry back. The returned registry is fully derived and
// must be treated as read-only.
func (s *FileStore) Load() (*registry.Registry, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("%w: %s: empty payload", ErrCorrupt, s.path)
	}
	if hashHex(env.Data) != env.Hash {
		return nil, fmt.Errorf("%w: %s: content hash mismatch", ErrCorrupt, s.path)
	}

	reg := registry.New()
	if err := json.Unmarshal(env.Data, reg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return reg, nil
}

func hashHex(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
