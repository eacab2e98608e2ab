package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists incremental state as a single JSON document. Writes
// go through a temp file and rename, so a crash mid-write leaves either
// the old document or the new one, never a mix.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the given JSON file. The file
// does not need to exist yet.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("state file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) Get(key Key) (*IncrementalState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	return doc[f.docKey(key)].Clone(), nil
}

func (f *FileStore) Put(key Key, st *IncrementalState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	doc[f.docKey(key)] = st

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) load() (map[string]*IncrementalState, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]*IncrementalState), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	doc := make(map[string]*IncrementalState)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode state file %s: %w", f.path, err)
		}
	}
	return doc, nil
}

func (f *FileStore) docKey(key Key) string {
	return key.Database + "/" + key.Layout
}
