package metadata

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/barasher/go-exiftool"

	"mmfplace/internal/place"
)

// ExiftoolSource reads tags through one long-running exiftool process.
type ExiftoolSource struct {
	et      *exiftool.Exiftool
	maxLine int
}

// NewExiftoolSource starts exiftool. binary may be empty to use PATH.
func NewExiftoolSource(binary string, maxLine int) (*ExiftoolSource, error) {
	opts := []func(*exiftool.Exiftool) error{exiftool.PrintGroupNames("0")}
	if binary != "" {
		opts = append(opts, exiftool.SetExiftoolBinaryPath(binary))
	}
	et, err := exiftool.NewExiftool(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: starting exiftool: %v", place.ErrSourceUnavailable, err)
	}
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	return &ExiftoolSource{et: et, maxLine: maxLine}, nil
}

// Read extracts the tags of path. The exiftool process serializes requests.
func (s *ExiftoolSource) Read(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fms := s.et.ExtractMetadata(path)
	if len(fms) != 1 {
		return nil, fmt.Errorf("%w: exiftool returned %d results", place.ErrSourceUnavailable, len(fms))
	}
	if fms[0].Err != nil {
		return nil, fmt.Errorf("%w: %v", place.ErrSourceUnavailable, fms[0].Err)
	}
	return fieldLines(fms[0].Fields, s.maxLine), nil
}

func (s *ExiftoolSource) Close() error {
	return s.et.Close()
}

// fieldLines renders "GROUP:Tag" keyed fields as "[GROUP] Tag = value".
func fieldLines(fields map[string]interface{}, maxLine int) []string {
	lines := make([]string, 0, len(fields))
	for key, value := range fields {
		if key == "SourceFile" {
			continue
		}
		group, tag, ok := strings.Cut(key, ":")
		if !ok {
			group, tag = "", key
		}
		line := fmt.Sprintf("[%s] %s = %v", group, tag, value)
		line = strings.ToValidUTF8(line, "\uFFFD")
		if len(line) >= maxLine {
			continue
		}
		lines = append(lines, line)
	}
	slices.Sort(lines)
	return lines
}

var _ place.MetadataSource = (*ExiftoolSource)(nil)
