// Package metadata implements place.MetadataSource backends. Every backend
// renders the tags it finds as "[Group] Tag = value" lines so the same
// capture patterns apply regardless of which tool read the file.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"mmfplace/internal/place"
)

const (
	// DefaultEntryClass prints every tag metadata-extractor finds in a file.
	DefaultEntryClass = "com.drew.imaging.ImageMetadataReader"
	// DefaultMaxLine drops lines at or above this length.
	DefaultMaxLine = 255

	extractorJar = "metadata-extractor-2.19.0.jar"
	xmpcoreJar   = "xmpcore-6.1.11.jar"
)

// JavaOptions configures the metadata-extractor subprocess.
type JavaOptions struct {
	// Java is the runtime binary, "java" from PATH when empty.
	Java string
	// ToolsDir holds the extractor and xmpcore jars. Ignored when Classpath is set.
	ToolsDir string
	// Classpath overrides the jar list built from ToolsDir.
	Classpath  string
	EntryClass string
	MaxLine    int
}

// JavaSource runs metadata-extractor once per file.
type JavaSource struct {
	java       string
	classpath  string
	entryClass string
	maxLine    int
}

func NewJavaSource(opts JavaOptions) *JavaSource {
	s := &JavaSource{
		java:       opts.Java,
		classpath:  opts.Classpath,
		entryClass: opts.EntryClass,
		maxLine:    opts.MaxLine,
	}
	if s.java == "" {
		s.java = "java"
	}
	if s.classpath == "" {
		s.classpath = DefaultClasspath(opts.ToolsDir)
	}
	if s.entryClass == "" {
		s.entryClass = DefaultEntryClass
	}
	if s.maxLine <= 0 {
		s.maxLine = DefaultMaxLine
	}
	return s
}

// DefaultClasspath lists the bundled jars in dir using the platform separator.
func DefaultClasspath(dir string) string {
	return strings.Join([]string{
		filepath.Join(dir, xmpcoreJar),
		filepath.Join(dir, extractorJar),
	}, string(os.PathListSeparator))
}

// Check verifies that the runtime can be found and the jars exist.
func (s *JavaSource) Check() error {
	if _, err := exec.LookPath(s.java); err != nil {
		return fmt.Errorf("%w: java runtime: %v", place.ErrSourceUnavailable, err)
	}
	for _, jar := range filepath.SplitList(s.classpath) {
		if _, err := os.Stat(jar); err != nil {
			return fmt.Errorf("%w: %v", place.ErrSourceUnavailable, err)
		}
	}
	return nil
}

// Read runs the extractor on path. A non-zero exit status is not an error:
// the extractor reports unsupported formats that way and whatever it printed
// is still used.
func (s *JavaSource) Read(ctx context.Context, path string) ([]string, error) {
	cmd := exec.CommandContext(ctx, s.java, "-cp", s.classpath, s.entryClass, path)
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: running %s: %v", place.ErrSourceUnavailable, s.java, err)
		}
		if len(out) == 0 {
			return nil, nil
		}
	}
	return splitLines(out, s.maxLine), nil
}

// splitLines keeps the distinct non-blank lines of out shorter than maxLine,
// sorted. Invalid UTF-8 is replaced with U+FFFD.
func splitLines(out []byte, maxLine int) []string {
	var lines []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimRight(strings.ToValidUTF8(line, "\uFFFD"), "\r")
		if strings.TrimSpace(line) == "" || len(line) >= maxLine {
			continue
		}
		lines = append(lines, line)
	}
	slices.Sort(lines)
	return slices.Compact(lines)
}

var _ place.MetadataSource = (*JavaSource)(nil)
