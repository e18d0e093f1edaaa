// Package filestore persists records in a single JSON document on disk, loaded lazily
// on first access and rewritten atomically on Save.
package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-access-client/store"
	"github.com/pkg/errors"
)

var _ store.Store = (*FileStore)(nil)

type FileStore struct {
	path string

	mu     sync.Mutex
	loaded bool
	dirty  bool
	data   map[string]json.RawMessage
}

// New returns a store backed by path. Nothing is read until the first call.
func New(path string) *FileStore {
	return &FileStore{path: path}
}

// Path is the backing file.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return false, err
	}
	raw, ok := f.data[key]
	if !ok || string(raw) == "null" {
		return false, nil
	}
	return true, store.Decode(key, raw, dst)
}

func (f *FileStore) Set(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.CheckKey(key); err != nil {
		return err
	}
	b, err := store.Encode(key, value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	f.data[key] = b
	f.dirty = true
	return nil
}

func (f *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	if _, ok := f.data[key]; ok {
		delete(f.data, key)
		f.dirty = true
	}
	return nil
}

func (f *FileStore) Save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty {
		return nil
	}
	b, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "FileStore.Save marshal")
	}
	if err := writeFileAtomic(f.path, b); err != nil {
		return errors.Wrap(err, "FileStore.Save write")
	}
	f.dirty = false
	return nil
}

// load reads the document once. A missing file is an empty store.
func (f *FileStore) load() error {
	if f.loaded {
		return nil
	}
	f.data = make(map[string]json.RawMessage)
	b, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return errors.Wrap(err, "FileStore.load read")
	case len(b) > 0:
		if err := json.Unmarshal(b, &f.data); err != nil {
			return errors.Wrapf(err, "FileStore.load %s is corrupt", f.path)
		}
	}
	f.loaded = true
	return nil
}

func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
