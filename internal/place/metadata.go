package place

import "context"

// MetadataSource reads human-readable "key = value" metadata lines from a file.
// Returned errors should wrap ErrSourceUnavailable when the reader itself failed.
type MetadataSource interface {
	Read(ctx context.Context, path string) ([]string, error)
}
