package metadata

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"mmfplace/internal/place"
)

// ExifSource decodes EXIF in process. It needs no external tools but only
// understands JPEG and TIFF based formats.
type ExifSource struct {
	maxLine int
}

func NewExifSource(maxLine int) *ExifSource {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	return &ExifSource{maxLine: maxLine}
}

// Read returns no lines for files without EXIF data.
func (s *ExifSource) Read(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", place.ErrSourceUnavailable, err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil && x == nil {
		return nil, nil
	}

	w := &lineWalker{maxLine: s.maxLine}
	if err := x.Walk(w); err != nil {
		return nil, fmt.Errorf("%w: walking exif tags: %v", place.ErrSourceUnavailable, err)
	}
	slices.Sort(w.lines)
	return w.lines, nil
}

type lineWalker struct {
	maxLine int
	lines   []string
}

func (w *lineWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	var value string
	if tag.Format() == tiff.StringVal {
		v, err := tag.StringVal()
		if err != nil {
			return nil
		}
		value = strings.TrimRight(v, "\x00 ")
	} else {
		value = tag.String()
	}
	line := strings.ToValidUTF8(fmt.Sprintf("[Exif] %s = %s", name, value), "\uFFFD")
	if len(line) < w.maxLine {
		w.lines = append(w.lines, line)
	}
	return nil
}

var _ place.MetadataSource = (*ExifSource)(nil)
