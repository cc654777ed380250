package place

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current time for run bookkeeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// RunIDs hands out identifiers for placement runs.
type RunIDs interface {
	NewRunID() string
}

// UUIDRunIDs produces random UUIDs.
type UUIDRunIDs struct{}

func (UUIDRunIDs) NewRunID() string { return uuid.New().String() }
