package testutil

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"mmfplace/internal/place"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content []byte
	Times   place.FileTimes
}

// MockFileSystem is an in-memory place.FileSystem for testing.
// Paths are used as given; callers should pass clean absolute paths.
type MockFileSystem struct {
	mu       sync.Mutex
	files    map[string]*MockFile
	hashErrs map[string]error
	copyErr  error
	copies   int
}

func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		files:    make(map[string]*MockFile),
		hashErrs: make(map[string]error),
	}
}

// AddFile adds a file with the given content and timestamps.
func (m *MockFileSystem) AddFile(path string, content []byte, times place.FileTimes) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{Content: slices.Clone(content), Times: times}
}

// File returns a copy of the file at path.
func (m *MockFileSystem) File(path string) (MockFile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		return MockFile{}, false
	}
	return MockFile{Content: slices.Clone(f.Content), Times: f.Times}, true
}

// PathsUnder returns the sorted paths below root.
func (m *MockFileSystem) PathsUnder(root string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(root, string(filepath.Separator)) + string(filepath.Separator)
	var paths []string
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)
	return paths
}

// FailHash makes Hash of path return err.
func (m *MockFileSystem) FailHash(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashErrs[path] = err
}

// FailCopy makes every CopyFile return err.
func (m *MockFileSystem) FailCopy(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.copyErr = err
}

// Copies returns the number of successful CopyFile calls.
func (m *MockFileSystem) Copies() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copies
}

func (m *MockFileSystem) Walk(root string, fn func(path string) error) error {
	for _, p := range m.PathsUnder(root) {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockFileSystem) Hash(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hashErrs[path]; err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	f, ok := m.files[path]
	if !ok {
		return "", fmt.Errorf("hashing %s: %w", path, fs.ErrNotExist)
	}
	return SHA256Hex(f.Content), nil
}

func (m *MockFileSystem) Times(path string) (place.FileTimes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		return place.FileTimes{}, fmt.Errorf("stat %s: %w", path, fs.ErrNotExist)
	}
	return f.Times, nil
}

func (m *MockFileSystem) Exists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok, nil
}

func (m *MockFileSystem) CopyFile(src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.copyErr != nil {
		return m.copyErr
	}
	f, ok := m.files[src]
	if !ok {
		return fmt.Errorf("copying %s: %w", src, fs.ErrNotExist)
	}
	m.files[dst] = &MockFile{Content: slices.Clone(f.Content), Times: f.Times}
	m.copies++
	return nil
}

func (m *MockFileSystem) SetTimes(path string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		return fmt.Errorf("setting times of %s: %w", path, fs.ErrNotExist)
	}
	f.Times = place.FileTimes{Accessed: t, Modified: t, Created: t}
	return nil
}

func (m *MockFileSystem) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

var _ place.FileSystem = (*MockFileSystem)(nil)
