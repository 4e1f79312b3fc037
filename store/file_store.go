package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/signkeeper/signkeeper/types"
	"github.com/spf13/afero"
	yaml "gopkg.in/yaml.v3"
)

const (
	formatJSON     = "json"
	formatYAML     = "yaml"
	checksumSuffix = ".checksum"
)

// FileStore implements KeyValueStore with one document per scope on a
// filesystem. Each write goes through a temp file and an atomic rename,
// with a checksum sidecar to detect corruption. When backed by the real
// OS filesystem a file lock serializes access across processes.
type FileStore struct {
	fs       afero.Fs
	basePath string
	format   string

	mu   sync.Mutex
	flk  *flock.Flock // nil for non-OS filesystems
}

// NewFileStore creates a file-backed store rooted at basePath; the per-scope
// documents are basePath + "." + scope + "." + format. Format must be
// "json" or "yaml".
func NewFileStore(filesystem afero.Fs, basePath, format string) (*FileStore, error) {
	formatLower := strings.ToLower(format)
	switch formatLower {
	case formatJSON, formatYAML:
	case "":
		formatLower = formatJSON
	default:
		return nil, fmt.Errorf("unsupported data format: %s. Supported formats are json, yaml", format)
	}

	dir := filepath.Dir(basePath)
	if dir != "." && dir != "" {
		if err := filesystem.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	s := &FileStore{
		fs:       filesystem,
		basePath: basePath,
		format:   formatLower,
	}
	// Cross-process locking only works against the real filesystem.
	if _, ok := filesystem.(*afero.OsFs); ok {
		s.flk = flock.New(basePath + ".lock")
	}
	return s, nil
}

func (s *FileStore) scopePath(scope Scope) string {
	return s.basePath + "." + string(scope) + "." + s.format
}

func (s *FileStore) lock() (func(), error) {
	s.mu.Lock()
	if s.flk == nil {
		return s.mu.Unlock, nil
	}
	if err := s.flk.Lock(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("could not acquire file lock: %w", err)
	}
	return func() {
		_ = s.flk.Unlock()
		s.mu.Unlock()
	}, nil
}

// calculateChecksum computes the SHA256 checksum of the given data.
func calculateChecksum(data []byte) string {
	hasher := sha256.New()
	hasher.Write(data) // Write never returns an error
	return hex.EncodeToString(hasher.Sum(nil))
}

// loadScope reads a scope document, verifies its checksum, and decodes it.
// A missing document is an empty scope.
func (s *FileStore) loadScope(scope Scope) (map[string]json.RawMessage, error) {
	path := s.scopePath(scope)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("failed to read data file %s: %w", path, err)
	}

	checksumPath := path + checksumSuffix
	if expected, err := afero.ReadFile(s.fs, checksumPath); err == nil {
		if actual := calculateChecksum(data); actual != strings.TrimSpace(string(expected)) {
			return nil, fmt.Errorf("checksum mismatch for %s - file is corrupt or tampered", path)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading checksum file %s: %w", checksumPath, err)
	}

	if len(data) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	return s.decodeDoc(data, path)
}

func (s *FileStore) decodeDoc(data []byte, path string) (map[string]json.RawMessage, error) {
	values := map[string]json.RawMessage{}
	switch s.format {
	case formatJSON:
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON from %s: %w", path, err)
		}
	case formatYAML:
		// YAML documents hold arbitrary values; re-encode each entry as
		// JSON so callers see a uniform representation.
		loose := map[string]any{}
		if err := yaml.Unmarshal(data, &loose); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML from %s: %w", path, err)
		}
		for k, v := range loose {
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to re-encode %s from %s: %w", k, path, err)
			}
			values[k] = raw
		}
	}
	return values, nil
}

func (s *FileStore) encodeDoc(values map[string]json.RawMessage) ([]byte, error) {
	switch s.format {
	case formatYAML:
		loose := map[string]any{}
		for k, raw := range values {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("failed to decode %s for YAML encoding: %w", k, err)
			}
			loose[k] = v
		}
		return yaml.Marshal(loose)
	default:
		return json.MarshalIndent(values, "", "  ")
	}
}

// saveScope encodes and writes a scope document followed by its checksum,
// each through a temp file and a rename.
func (s *FileStore) saveScope(scope Scope, values map[string]json.RawMessage) error {
	data, err := s.encodeDoc(values)
	if err != nil {
		return fmt.Errorf("failed to marshal scope %s: %w", scope, err)
	}

	path := s.scopePath(scope)
	checksumPath := path + checksumSuffix
	tmpPath := path + ".tmp"
	tmpChecksumPath := checksumPath + ".tmp"
	defer func() { _ = s.fs.Remove(tmpPath) }()
	defer func() { _ = s.fs.Remove(tmpChecksumPath) }()

	if err := afero.WriteFile(s.fs, tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary data file %s: %w", tmpPath, err)
	}
	if err := afero.WriteFile(s.fs, tmpChecksumPath, []byte(calculateChecksum(data)), 0o644); err != nil {
		return fmt.Errorf("failed to write temporary checksum file %s: %w", tmpChecksumPath, err)
	}
	if err := s.fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temporary data file %s to %s: %w", tmpPath, path, err)
	}
	if err := s.fs.Rename(tmpChecksumPath, checksumPath); err != nil {
		return fmt.Errorf("data file %s updated but checksum file %s was not: %w", path, checksumPath, err)
	}
	return nil
}

// Get retrieves a single value from the scope document.
func (s *FileStore) Get(ctx context.Context, scope Scope, key string) (json.RawMessage, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	values, err := s.loadScope(scope)
	if err != nil {
		return nil, err
	}
	raw, ok := values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", types.ErrKeyNotFound, scope, key)
	}
	return raw, nil
}

// GetAll retrieves the full scope document.
func (s *FileStore) GetAll(ctx context.Context, scope Scope) (map[string]json.RawMessage, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.loadScope(scope)
}

// Save merges the given pairs into the scope document and rewrites it.
func (s *FileStore) Save(ctx context.Context, scope Scope, pairs map[string]json.RawMessage) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	values, err := s.loadScope(scope)
	if err != nil {
		return err
	}
	for k, v := range pairs {
		values[k] = v
	}
	return s.saveScope(scope, values)
}

// Delete removes the given keys from the scope document.
func (s *FileStore) Delete(ctx context.Context, scope Scope, keys ...string) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	values, err := s.loadScope(scope)
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := values[k]; ok {
			delete(values, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.saveScope(scope, values)
}

// LocalPath returns the on-disk path of the local-scope document, for
// callers that watch it for external modification.
func (s *FileStore) LocalPath() string {
	return s.scopePath(ScopeLocal)
}

// Close releases the file lock if one is held.
func (s *FileStore) Close() error {
	if s.flk != nil {
		return s.flk.Unlock()
	}
	return nil
}
