package place

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable means a timestamp source could not be consulted.
	// The source contributes no candidates; resolution continues.
	ErrSourceUnavailable = errors.New("timestamp source unavailable")

	// ErrNoTimestampFound means no candidate survived from any source.
	ErrNoTimestampFound = errors.New("no timestamp found")

	// ErrTooManyCollisions means every generated destination name was taken.
	ErrTooManyCollisions = errors.New("too many name collisions")

	// ErrUnrecognizedFormat means a captured date string matched no configured format.
	ErrUnrecognizedFormat = errors.New("unrecognized date format")

	// ErrDuplicateKey is returned by Index.Insert when the hash is already present.
	ErrDuplicateKey = errors.New("duplicate content hash")

	// ErrNotFound is returned by Index.Update when the hash is absent.
	ErrNotFound = errors.New("content hash not found")
)

// Stage names the pipeline step a file failed in.
type Stage string

const (
	StageHash    Stage = "hash"
	StageLookup  Stage = "lookup"
	StageResolve Stage = "resolve"
	StagePlace   Stage = "place"
)

// FileError attaches the source path and stage to a per-file failure.
type FileError struct {
	Path  string
	Stage Stage
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// IsFileFatal reports whether err only dooms the file it occurred on.
// Lenient runs skip such files; every other error ends the run.
func IsFileFatal(err error) bool {
	if errors.Is(err, ErrNoTimestampFound) ||
		errors.Is(err, ErrTooManyCollisions) ||
		errors.Is(err, ErrUnrecognizedFormat) {
		return true
	}
	var fe *FileError
	if errors.As(err, &fe) {
		return fe.Stage == StageHash
	}
	return false
}
