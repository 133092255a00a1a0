package filestore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// FailDownloads lists container/name keys whose Download should fail,
	// for exercising per-item failure isolation.
	FailDownloads map[string]bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:       make(map[string][]byte),
		FailDownloads: make(map[string]bool),
	}
}

// Put seeds an object directly.
func (s *MemoryStore) Put(container, name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path.Join(container, name)] = data
}

// Get returns a stored object's bytes.
func (s *MemoryStore) Get(container, name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path.Join(container, name)]
	return data, ok
}

func (s *MemoryStore) Download(ctx context.Context, container, name, destDir string) (string, error) {
	key := path.Join(container, name)

	s.mu.RLock()
	fail := s.FailDownloads[key]
	data, ok := s.objects[key]
	s.mu.RUnlock()

	if fail {
		return "", fmt.Errorf("filestore: download %s: injected failure", key)
	}
	if !ok {
		return "", fmt.Errorf("filestore: object %s not found", key)
	}

	localPath := filepath.Join(destDir, filepath.Base(name))
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return "", err
	}
	return localPath, nil
}

func (s *MemoryStore) Upload(ctx context.Context, container, name, localPath string) (ObjectInfo, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return ObjectInfo{}, err
	}

	s.mu.Lock()
	s.objects[path.Join(container, name)] = data
	s.mu.Unlock()

	sum := md5.Sum(data)
	return ObjectInfo{
		Name:     name,
		Size:     int64(len(data)),
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}

func (s *MemoryStore) Stat(ctx context.Context, container, name string) (ObjectInfo, error) {
	s.mu.RLock()
	data, ok := s.objects[path.Join(container, name)]
	s.mu.RUnlock()

	if !ok {
		return ObjectInfo{}, fmt.Errorf("filestore: object %s/%s not found", container, name)
	}

	sum := md5.Sum(data)
	return ObjectInfo{
		Name:     name,
		Size:     int64(len(data)),
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}
