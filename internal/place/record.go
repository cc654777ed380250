package place

import (
	"path/filepath"
	"strings"
	"time"
)

// ContentRecord is the persisted placement of one distinct content hash.
type ContentRecord struct {
	Hash      string
	PathParts []string
	Earliest  int64 // seconds since epoch
}

// EarliestTime returns the recorded earliest timestamp as a UTC time.
func (r *ContentRecord) EarliestTime() time.Time {
	return time.Unix(r.Earliest, 0).UTC()
}

// Source identifies where a candidate timestamp came from.
type Source int

const (
	SourceMetadata Source = iota
	SourceAttributes
	SourceFilename
)

func (s Source) String() string {
	switch s {
	case SourceMetadata:
		return "metadata"
	case SourceAttributes:
		return "attributes"
	case SourceFilename:
		return "filename"
	default:
		return "unknown"
	}
}

// Candidate is one extracted timestamp signal for a file.
type Candidate struct {
	Value  time.Time
	Source Source
}

// FileTarget carries a single file through the pipeline.
type FileTarget struct {
	SourcePath string
	Hash       string

	// Stem is the lowercased base name without extension.
	Stem string
	// Extension is the lowercased original extension, "bin" when the file has none.
	Extension string
	// CorrectedType is the file type reported by metadata, empty if none was found.
	CorrectedType string

	Candidates []Candidate
	Earliest   time.Time
	PathParts  []string

	// AlreadyKnown is set when the index held a record for Hash at parse time.
	AlreadyKnown bool
	Record       *ContentRecord
}

// NewFileTarget derives the name fields of a target from its source path.
func NewFileTarget(sourcePath, hash string) *FileTarget {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		ext = "bin"
	}
	return &FileTarget{
		SourcePath: sourcePath,
		Hash:       hash,
		Stem:       strings.ToLower(stem),
		Extension:  ext,
	}
}
