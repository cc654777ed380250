package app

import (
	"fmt"

	"mmfplace/internal/database"
	"mmfplace/internal/place"
)

// Operation tracks a CLI command that may record a run in the index.
// Operations are created in memory with ID=0. Only placement runs persist
// them, which gives them the row ID of their runs entry.
type Operation struct {
	ID      int64
	RunID   string
	Command string
	Status  string
	DryRun  bool
	Stats   place.Stats
}

// NewOperation creates a new in-memory operation.
func NewOperation(command, runID string) *Operation {
	return &Operation{
		RunID:   runID,
		Command: command,
		Status:  database.RunStatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the index.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Summary renders the run counters stored with the run record.
func (op *Operation) Summary() string {
	return FormatStats(op.Stats)
}

// FormatStats renders stats as space separated key=value pairs.
func FormatStats(s place.Stats) string {
	return fmt.Sprintf("discovered=%d known=%d placed=%d skipped=%d overwritten=%d restored=%d replaced=%d failed=%d",
		s.Discovered, s.Known, s.Placed, s.Skipped, s.Overwritten, s.Restored, s.Replaced, s.Failed)
}
