package place

import "time"

// FileTimes holds the filesystem timestamps of a file.
// A zero value means the platform could not provide that time.
type FileTimes struct {
	Accessed time.Time
	Modified time.Time
	Created  time.Time
}

// FileSystem abstracts the file operations used by the resolver, engine and pipeline.
type FileSystem interface {
	// Walk calls fn for every regular, non-ignored file under root.
	Walk(root string, fn func(path string) error) error

	// Hash returns the hex content digest of the file at path.
	Hash(path string) (string, error)

	// Times returns the filesystem timestamps of the file at path.
	Times(path string) (FileTimes, error)

	// Exists reports whether a file exists at path.
	Exists(path string) (bool, error)

	// CopyFile copies src to dst atomically, creating parent directories.
	// An existing dst is replaced.
	CopyFile(src, dst string) error

	// SetTimes sets the accessed, modified and, where supported, created time of path.
	SetTimes(path string, t time.Time) error

	// Remove deletes the file at path. A missing file is not an error.
	Remove(path string) error
}
