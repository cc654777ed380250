package dateparse

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ncruces/go-strftime"
)

// nonASCIISeparators replace every non-ASCII character, in turn, when a value
// does not parse as-is. Localized metadata often uses wide or native separators.
var nonASCIISeparators = []string{" ", "-", ":", "1", ""}

// ErrNoMatch is returned by Extractor.Extract when no capture applies to the text.
var ErrNoMatch = errors.New("no capture matched")

// FormatError reports a captured value that no configured format accepts.
type FormatError struct {
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("no format accepts %q", e.Value)
}

// Format is a strptime format together with a sample value it must accept.
type Format struct {
	Fmt  string
	Test string
}

// Func parses value, reporting whether it matched.
type Func func(value string) (time.Time, bool)

// Strptime returns a Func for a strptime-style format.
// Values without zone information are taken as UTC.
func Strptime(format string) (Func, error) {
	if _, err := strftime.Layout(format); err != nil {
		return nil, fmt.Errorf("invalid format %q: %w", format, err)
	}
	return func(value string) (time.Time, bool) {
		t, err := strftime.Parse(format, value)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	}, nil
}

// Parser tries an ordered list of formats.
type Parser struct {
	funcs []Func
}

// NewParser compiles formats in order. A format whose Test value it cannot
// parse is rejected, which surfaces configuration mistakes at load time.
func NewParser(formats []Format) (*Parser, error) {
	p := &Parser{}
	for _, f := range formats {
		fn, err := Strptime(f.Fmt)
		if err != nil {
			return nil, err
		}
		if f.Test != "" {
			if _, ok := fn(f.Test); !ok {
				return nil, fmt.Errorf("format %q does not accept its test value %q", f.Fmt, f.Test)
			}
		}
		p.funcs = append(p.funcs, fn)
	}
	return p, nil
}

// Len returns the number of formats.
func (p *Parser) Len() int { return len(p.funcs) }

// Parse returns the instant of the first format accepting value.
func (p *Parser) Parse(value string) (time.Time, bool) {
	if isASCII(value) {
		return p.try(value)
	}
	for _, sep := range nonASCIISeparators {
		if t, ok := p.try(replaceNonASCII(value, sep)); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func (p *Parser) try(value string) (time.Time, bool) {
	for _, fn := range p.funcs {
		if t, ok := fn(value); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func replaceNonASCII(s, sep string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= utf8.RuneSelf {
			b.WriteString(sep)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Extractor pairs a capture list with a parser.
type Extractor struct {
	captures CaptureList
	parser   *Parser
}

func NewExtractor(captures CaptureList, parser *Parser) *Extractor {
	return &Extractor{captures: captures, parser: parser}
}

// Extract returns the instant embedded in text.
// It returns ErrNoMatch when no capture applies and a *FormatError when the
// captured value is not accepted by any format.
func (e *Extractor) Extract(text string) (time.Time, error) {
	value, ok := e.captures.Find(text)
	if !ok {
		return time.Time{}, ErrNoMatch
	}
	t, ok := e.parser.Parse(value)
	if !ok {
		return time.Time{}, &FormatError{Value: value}
	}
	return t, nil
}
