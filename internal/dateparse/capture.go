// Package dateparse turns metadata lines and file names into instants using
// configured capture patterns and an ordered list of strptime formats.
package dateparse

import (
	"fmt"
	"regexp"
	"strings"
)

// Capture pulls a value out of a line with a regular expression.
// The first submatch is the value; a pattern without groups yields the whole match.
type Capture struct {
	check   string
	re      *regexp.Regexp
	ignores []string
}

// NewCapture compiles a capture. check, when non-empty, must appear in a line
// before the pattern is tried. Values containing any of ignores are rejected.
func NewCapture(check, pattern string, ignores []string) (*Capture, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling capture pattern %q: %w", pattern, err)
	}
	return &Capture{check: check, re: re, ignores: ignores}, nil
}

// Find returns the captured value in text.
func (c *Capture) Find(text string) (string, bool) {
	if c.check != "" && !strings.Contains(text, c.check) {
		return "", false
	}
	m := c.re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	value := m[0]
	if len(m) > 1 {
		value = m[1]
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	for _, ignore := range c.ignores {
		if strings.Contains(value, ignore) {
			return "", false
		}
	}
	return value, true
}

// CaptureList is an ordered set of captures; the first one that matches wins.
type CaptureList []*Capture

func (l CaptureList) Find(text string) (string, bool) {
	for _, c := range l {
		if value, ok := c.Find(text); ok {
			return value, true
		}
	}
	return "", false
}
