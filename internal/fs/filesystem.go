package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/djherbis/times"

	"mmfplace/internal/hashing"
	"mmfplace/internal/place"
)

// OSFileSystem is the real filesystem implementation of place.FileSystem.
type OSFileSystem struct {
	hasher   *hashing.Hasher
	patterns []string
	exclude  []string
}

// NewOSFileSystem creates a filesystem that hashes with hasher, skips files
// matching ignorePatterns, and never descends into the exclude paths.
func NewOSFileSystem(hasher *hashing.Hasher, ignorePatterns []string, exclude ...string) *OSFileSystem {
	var cleaned []string
	for _, e := range exclude {
		if e == "" {
			continue
		}
		if abs, err := filepath.Abs(e); err == nil {
			cleaned = append(cleaned, abs)
		}
	}
	return &OSFileSystem{
		hasher:   hasher,
		patterns: append(append([]string{}, defaultIgnorePatterns...), ignorePatterns...),
		exclude:  cleaned,
	}
}

// Walk calls fn for each regular file under root in lexical order.
// Patterns from an ignore file at the root are added to the configured ones.
func (m *OSFileSystem) Walk(root string, fn func(path string) error) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absRoot)
	}

	extra, err := ParseIgnoreFile(filepath.Join(absRoot, IgnoreFileName))
	if err != nil {
		return err
	}
	matcher := NewIgnoreMatcher(append(append([]string{}, m.patterns...), extra...))

	return filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == absRoot {
			return nil
		}
		if m.excluded(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", p, err)
		}
		if matcher.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		return fn(p)
	})
}

func (m *OSFileSystem) excluded(p string) bool {
	for _, e := range m.exclude {
		if p == e || strings.HasPrefix(p, e+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Hash returns the content digest of the file at path.
func (m *OSFileSystem) Hash(path string) (string, error) {
	return m.hasher.File(path)
}

// Times reads access, modification and, where the platform records it, birth time.
func (m *OSFileSystem) Times(path string) (place.FileTimes, error) {
	ts, err := times.Stat(path)
	if err != nil {
		return place.FileTimes{}, fmt.Errorf("stat times: %w", err)
	}
	ft := place.FileTimes{
		Accessed: ts.AccessTime(),
		Modified: ts.ModTime(),
	}
	if ts.HasBirthTime() {
		ft.Created = ts.BirthTime()
	}
	return ft, nil
}

// Exists reports whether anything occupies path.
func (m *OSFileSystem) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

// CopyFile copies src to dst through a temp file in the destination directory
// and renames it into place.
func (m *OSFileSystem) CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}
	return writeFile(dst, in, info.Size())
}

// SetTimes stamps path with t. Failing to set the creation time is reported as
// errors.ErrUnsupported after access and modification times were applied.
func (m *OSFileSystem) SetTimes(path string, t time.Time) error {
	if err := os.Chtimes(path, t, t); err != nil {
		return fmt.Errorf("setting file times: %w", err)
	}
	return setCreationTime(path, t)
}

// Remove deletes path; a missing file is not an error.
func (m *OSFileSystem) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// writeFile writes r to destPath using a temp file and rename.
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ place.FileSystem = (*OSFileSystem)(nil)
