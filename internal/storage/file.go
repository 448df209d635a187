package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	sferrors "github.com/felixgeelhaar/storefront/internal/errors"
)

// File stores all entries in one YAML document on disk.
//
// Every write rewrites the document through a temporary file and a rename,
// so a crash never leaves a half-written session behind. The file is created
// with 0600 permissions because it holds bearer tokens.
type File struct {
	path string
	mu   sync.Mutex
}

// fileDocument is the on-disk layout.
type fileDocument struct {
	Version int               `yaml:"version"`
	Entries map[string]string `yaml:"entries"`
}

const fileVersion = 1

// NewFile returns a backend that persists to path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the session file location.
func (f *File) Path() string {
	return f.path
}

// Get returns the value stored under key.
func (f *File) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, sferrors.NewStorageReadError(key, err)
	}
	value, ok := doc.Entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(value), nil
}

// Set stores value under key and flushes the document.
func (f *File) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return sferrors.NewStorageWriteError(key, err)
	}
	doc.Entries[key] = string(value)
	if err := f.save(doc); err != nil {
		return sferrors.NewStorageWriteError(key, err)
	}
	return nil
}

// Delete removes key and flushes the document. The file itself is removed
// once it holds no entries.
func (f *File) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return sferrors.NewStorageWriteError(key, err)
	}
	if _, ok := doc.Entries[key]; !ok {
		return nil
	}
	delete(doc.Entries, key)

	if len(doc.Entries) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return sferrors.NewStorageWriteError(key, err)
		}
		return nil
	}
	if err := f.save(doc); err != nil {
		return sferrors.NewStorageWriteError(key, err)
	}
	return nil
}

// Ping checks that the session directory is usable.
func (f *File) Ping(ctx context.Context) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("session directory %s: %w", dir, err)
	}
	return nil
}

func (f *File) load() (*fileDocument, error) {
	doc := &fileDocument{Version: fileVersion, Entries: map[string]string{}}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	if doc.Entries == nil {
		doc.Entries = map[string]string{}
	}
	return doc, nil
}

func (f *File) save(doc *fileDocument) error {
	doc.Version = fileVersion
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".session-*.yaml")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, f.path)
}
