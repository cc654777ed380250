package metadata

import (
	"context"
	"fmt"
	"io"

	"mmfplace/internal/place"
)

// Backend names accepted by New.
const (
	BackendJava     = "java"
	BackendExiftool = "exiftool"
	BackendExif     = "exif"
	BackendNone     = "none"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Java    JavaOptions
	// Exiftool is the exiftool binary, PATH lookup when empty.
	Exiftool string
	MaxLine  int
}

// Source is a place.MetadataSource that may hold a subprocess open.
type Source interface {
	place.MetadataSource
	io.Closer
}

// New builds the configured backend. An empty backend selects java.
func New(opts Options) (Source, error) {
	switch opts.Backend {
	case BackendJava, "":
		java := opts.Java
		if java.MaxLine == 0 {
			java.MaxLine = opts.MaxLine
		}
		return nopCloser{NewJavaSource(java)}, nil
	case BackendExiftool:
		return NewExiftoolSource(opts.Exiftool, opts.MaxLine)
	case BackendExif:
		return nopCloser{NewExifSource(opts.MaxLine)}, nil
	case BackendNone:
		return nopCloser{None{}}, nil
	default:
		return nil, fmt.Errorf("unknown metadata backend: %s", opts.Backend)
	}
}

// None reports no metadata for every file.
type None struct{}

func (None) Read(context.Context, string) ([]string, error) { return nil, nil }

// Unavailable fails every read with place.ErrSourceUnavailable. It stands
// in for a backend that could not be started.
type Unavailable struct {
	Err error
}

func (u Unavailable) Read(context.Context, string) ([]string, error) {
	return nil, fmt.Errorf("%w: %v", place.ErrSourceUnavailable, u.Err)
}

func (Unavailable) Close() error { return nil }

type nopCloser struct {
	place.MetadataSource
}

func (nopCloser) Close() error { return nil }

// Checker is implemented by sources that can verify their tools up front.
type Checker interface {
	Check() error
}

// Check verifies the tools behind s when it supports checking.
func Check(s Source) error {
	if nc, ok := s.(nopCloser); ok {
		if c, ok := nc.MetadataSource.(Checker); ok {
			return c.Check()
		}
		return nil
	}
	if c, ok := s.(Checker); ok {
		return c.Check()
	}
	return nil
}
