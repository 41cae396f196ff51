// Package modelstore persists trained model artifacts as versioned JSON
// files and records evaluation history in SQLite.
package modelstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/foundryline/plantsafe/internal/fsutil"
)

var (
	// ErrNotFound reports a missing artifact name or version.
	ErrNotFound = errors.New("model artifact not found")
	// ErrInvalidName reports an artifact name the store cannot use in a
	// filename.
	ErrInvalidName = errors.New("invalid artifact name")
)

// Artifact wraps a stored payload with its version metadata. Payload holds
// the model's own JSON encoding.
type Artifact struct {
	Name      string          `json:"name"`
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Store reads and writes versioned model artifacts under one directory.
// Files are named <name>-v<NNN>.json and versions only ever grow; saving
// never overwrites an existing version.
type Store struct {
	dir string
	fs  fsutil.FileSystem
}

// NewStore opens a store rooted at dir on the real filesystem, creating
// the directory if needed.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithFS(dir, fsutil.OSFileSystem{})
}

// NewStoreWithFS opens a store over an injected filesystem.
func NewStoreWithFS(dir string, fsys fsutil.FileSystem) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("model store directory must not be empty")
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model store dir: %w", err)
	}
	return &Store{dir: dir, fs: fsys}, nil
}

// SaveNew writes payload as the next version of name and returns the
// stored artifact.
func (s *Store) SaveNew(name string, payload any) (Artifact, error) {
	versions, err := s.Versions(name)
	if err != nil {
		return Artifact{}, err
	}
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1] + 1
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Artifact{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	art := Artifact{
		Name:      name,
		Version:   next,
		CreatedAt: time.Now().UTC(),
		Payload:   raw,
	}
	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return Artifact{}, fmt.Errorf("marshal %s artifact: %w", name, err)
	}
	if err := s.fs.WriteFile(s.path(name, next), data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("write %s v%d: %w", name, next, err)
	}
	return art, nil
}

// LoadLatest loads the highest stored version of name. A non-nil payload
// receives the artifact's decoded payload.
func (s *Store) LoadLatest(name string, payload any) (Artifact, error) {
	versions, err := s.Versions(name)
	if err != nil {
		return Artifact{}, err
	}
	if len(versions) == 0 {
		return Artifact{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.LoadVersion(name, versions[len(versions)-1], payload)
}

// LoadVersion loads one stored version of name.
func (s *Store) LoadVersion(name string, version int, payload any) (Artifact, error) {
	if !validName(name) {
		return Artifact{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if version < 1 {
		return Artifact{}, fmt.Errorf("%w: %s v%d", ErrNotFound, name, version)
	}
	data, err := s.fs.ReadFile(s.path(name, version))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Artifact{}, fmt.Errorf("%w: %s v%d", ErrNotFound, name, version)
		}
		return Artifact{}, fmt.Errorf("read %s v%d: %w", name, version, err)
	}

	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return Artifact{}, fmt.Errorf("decode %s v%d: %w", name, version, err)
	}
	if payload != nil {
		if err := json.Unmarshal(art.Payload, payload); err != nil {
			return Artifact{}, fmt.Errorf("decode %s v%d payload: %w", name, version, err)
		}
	}
	return art, nil
}

// Versions lists the stored versions of name in ascending order.
func (s *Store) Versions(name string) ([]int, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan model store: %w", err)
	}

	prefix := name + "-v"
	var versions []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		base := e.Name()
		if !strings.HasPrefix(base, prefix) || !strings.HasSuffix(base, ".json") {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, prefix), ".json"))
		if err != nil || v < 1 {
			continue
		}
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions, nil
}

func (s *Store) path(name string, version int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-v%03d.json", name, version))
}

// validName allows letters, digits, underscore, and hyphen, keeping
// artifact names safe to embed in filenames.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
