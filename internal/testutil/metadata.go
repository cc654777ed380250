package testutil

import (
	"context"
	"fmt"
	"sync"

	"mmfplace/internal/place"
)

// StubMetadataSource serves canned metadata lines per path.
type StubMetadataSource struct {
	mu    sync.Mutex
	lines map[string][]string
	// Unavailable makes every read fail with place.ErrSourceUnavailable.
	Unavailable bool
	calls       int
}

func NewStubMetadataSource() *StubMetadataSource {
	return &StubMetadataSource{lines: make(map[string][]string)}
}

// Set registers the lines returned for path.
func (s *StubMetadataSource) Set(path string, lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[path] = lines
}

func (s *StubMetadataSource) Read(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.Unavailable {
		return nil, fmt.Errorf("%w: stub", place.ErrSourceUnavailable)
	}
	return s.lines[path], nil
}

// Calls returns the number of Read calls.
func (s *StubMetadataSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
