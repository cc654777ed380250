//go:build !windows

package fs

import (
	"errors"
	"fmt"
	"time"
)

func setCreationTime(path string, _ time.Time) error {
	return fmt.Errorf("creation time of %s: %w", path, errors.ErrUnsupported)
}
