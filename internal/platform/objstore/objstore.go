// Package objstore provides artifact storage for generated output documents
// (the dashboard's availability.json). It defines the Store interface, an
// in-memory implementation for tests and development, and a filesystem
// implementation for deployments that serve artifacts from disk.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrObjectNotFound is returned when the named object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is the contract for artifact storage backends. Put replaces any
// existing object under the same name atomically from the reader's point of
// view: readers see either the old content or the new, never a mix.
type Store interface {
	Put(ctx context.Context, name, contentType string, content io.Reader) (*ObjectInfo, error)
	Get(ctx context.Context, name string) (io.ReadCloser, *ObjectInfo, error)
	Stat(ctx context.Context, name string) (*ObjectInfo, error)
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type memoryObject struct {
	info    ObjectInfo
	content []byte
}

// MemoryStore keeps objects in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memoryObject
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*memoryObject)}
}

// Put stores or replaces an object.
func (s *MemoryStore) Put(_ context.Context, name, contentType string, content io.Reader) (*ObjectInfo, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}

	info := ObjectInfo{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		UpdatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.objects[name] = &memoryObject{info: info, content: data}
	s.mu.Unlock()

	return &info, nil
}

// Get returns an object's content and metadata.
func (s *MemoryStore) Get(_ context.Context, name string) (io.ReadCloser, *ObjectInfo, error) {
	s.mu.RLock()
	obj, ok := s.objects[name]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrObjectNotFound
	}
	info := obj.info
	return io.NopCloser(strings.NewReader(string(obj.content))), &info, nil
}

// Stat returns an object's metadata.
func (s *MemoryStore) Stat(_ context.Context, name string) (*ObjectInfo, error) {
	s.mu.RLock()
	obj, ok := s.objects[name]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrObjectNotFound
	}
	info := obj.info
	return &info, nil
}

// ---------------------------------------------------------------------------
// Filesystem implementation
// ---------------------------------------------------------------------------

// FileStore persists objects under a root directory. Content types are
// derived from the object name's extension.
type FileStore struct {
	root string
	mu   sync.RWMutex
}

// NewFileStore creates the root directory if needed and returns a FileStore.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create object store root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.root, filepath.Clean("/"+name))
}

// Put writes the object to a temp file and renames it into place, so readers
// never observe a partial write.
func (s *FileStore) Put(_ context.Context, name, contentType string, content io.Reader) (*ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return nil, fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, content)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp object: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return nil, fmt.Errorf("replace object: %w", err)
	}

	return &ObjectInfo{
		Name:        name,
		ContentType: contentType,
		Size:        size,
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

// Get opens the object for reading.
func (s *FileStore) Get(_ context.Context, name string) (io.ReadCloser, *ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open object: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat object: %w", err)
	}

	return f, &ObjectInfo{
		Name:        name,
		ContentType: contentTypeFor(name),
		Size:        fi.Size(),
		UpdatedAt:   fi.ModTime().UTC(),
	}, nil
}

// Stat returns an object's metadata without opening it.
func (s *FileStore) Stat(_ context.Context, name string) (*ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fi, err := os.Stat(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat object: %w", err)
	}

	return &ObjectInfo{
		Name:        name,
		ContentType: contentTypeFor(name),
		Size:        fi.Size(),
		UpdatedAt:   fi.ModTime().UTC(),
	}, nil
}

func contentTypeFor(name string) string {
	switch filepath.Ext(name) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
