package testutil

import (
	"testing"

	"mmfplace/internal/database"
)

// NewTestIndex creates an in-memory content index with the schema applied.
func NewTestIndex(t *testing.T) *database.SQLiteIndex {
	t.Helper()

	idx, err := database.NewSQLiteIndex(database.MemoryPath, FixedClock())
	if err != nil {
		t.Fatalf("failed to create test index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}
