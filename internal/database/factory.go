package database

import (
	"fmt"
	"os"
	"path/filepath"

	"mmfplace/internal/config"
	"mmfplace/internal/place"
)

// DefaultIndexName is the index file created in the work directory when the
// configuration names no path.
const DefaultIndexName = "mmfplace.db"

// NewIndexFromConfig opens the index the configuration points at.
// Relative paths are resolved against workDir.
func NewIndexFromConfig(cfg config.IndexConfig, workDir string, clock place.Clock) (*SQLiteIndex, error) {
	path := cfg.Path
	switch {
	case path == MemoryPath:
		return NewSQLiteIndex(MemoryPath, clock)
	case path == "":
		if workDir == "" {
			return nil, fmt.Errorf("index path or work directory required")
		}
		path = filepath.Join(workDir, DefaultIndexName)
	case !filepath.IsAbs(path):
		if workDir == "" {
			return nil, fmt.Errorf("relative index path %q needs a work directory", path)
		}
		path = filepath.Join(workDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	return NewSQLiteIndex(path, clock)
}
