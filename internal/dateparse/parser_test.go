package dateparse

import (
	"errors"
	"testing"
	"time"
)

func mustParser(t *testing.T, formats ...string) *Parser {
	t.Helper()
	var fs []Format
	for _, f := range formats {
		fs = append(fs, Format{Fmt: f})
	}
	p, err := NewParser(fs)
	if err != nil {
		t.Fatalf("NewParser() error = %v", err)
	}
	return p
}

func TestParser_Parse(t *testing.T) {
	p := mustParser(t,
		"%Y:%m:%d %H:%M:%S",
		"%Y-%m-%d %H:%M:%S",
		"%Y-%m-%dT%H:%M:%S",
		"%Y%m%d_%H%M%S",
		"%Y-%m-%d",
	)

	tests := []struct {
		name  string
		value string
		want  time.Time
		ok    bool
	}{
		{"exif colon form", "2002:11:16 15:27:01", time.Date(2002, 11, 16, 15, 27, 1, 0, time.UTC), true},
		{"dash form", "2018-05-02 13:13:39", time.Date(2018, 5, 2, 13, 13, 39, 0, time.UTC), true},
		{"iso T form", "2021-07-04T09:00:00", time.Date(2021, 7, 4, 9, 0, 0, 0, time.UTC), true},
		{"compact form", "20240315_143022", time.Date(2024, 3, 15, 14, 30, 22, 0, time.UTC), true},
		{"date only is midnight", "2020-01-01", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"garbage", "not a date", time.Time{}, false},
		{"trailing text rejected", "2020-01-01 extra", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.Parse(tt.value)
			if ok != tt.ok {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.value, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParser_NonASCIIFallback(t *testing.T) {
	t.Run("wide slashes become dashes", func(t *testing.T) {
		p := mustParser(t, "%Y-%m-%d")
		got, ok := p.Parse("2002／11／16")
		if !ok {
			t.Fatal("Parse() ok = false, want true")
		}
		want := time.Date(2002, 11, 16, 0, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("Parse() = %v, want %v", got, want)
		}
	})

	t.Run("no-break space becomes space", func(t *testing.T) {
		p := mustParser(t, "%Y:%m:%d %H:%M:%S")
		got, ok := p.Parse("2002:11:16 15:27:01")
		if !ok {
			t.Fatal("Parse() ok = false, want true")
		}
		want := time.Date(2002, 11, 16, 15, 27, 1, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("Parse() = %v, want %v", got, want)
		}
	})

	t.Run("native date markers are dropped", func(t *testing.T) {
		p := mustParser(t, "%Y%m%d")
		got, ok := p.Parse("2002年11月16日")
		if !ok {
			t.Fatal("Parse() ok = false, want true")
		}
		want := time.Date(2002, 11, 16, 0, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("Parse() = %v, want %v", got, want)
		}
	})
}

func TestNewParser(t *testing.T) {
	t.Run("rejects a format that fails its test value", func(t *testing.T) {
		_, err := NewParser([]Format{{Fmt: "%Y-%m-%d", Test: "2002:11:16"}})
		if err == nil {
			t.Fatal("NewParser() error = nil, want error")
		}
	})

	t.Run("accepts a format with a matching test value", func(t *testing.T) {
		p, err := NewParser([]Format{{Fmt: "%Y:%m:%d %H:%M:%S", Test: "2002:11:16 15:27:01"}})
		if err != nil {
			t.Fatalf("NewParser() error = %v", err)
		}
		if p.Len() != 1 {
			t.Errorf("Len() = %d, want 1", p.Len())
		}
	})

	t.Run("rejects an unsupported directive", func(t *testing.T) {
		if _, err := NewParser([]Format{{Fmt: "%Q"}}); err == nil {
			t.Fatal("NewParser() error = nil, want error")
		}
	})
}

func TestExtractor_Extract(t *testing.T) {
	c, err := NewCapture("Date/Time", `Date/Time[^=]*=\s*(.+)$`, []string{"0000:00:00"})
	if err != nil {
		t.Fatalf("NewCapture() error = %v", err)
	}
	e := NewExtractor(CaptureList{c}, mustParser(t, "%Y:%m:%d %H:%M:%S"))

	t.Run("extracts embedded date", func(t *testing.T) {
		got, err := e.Extract("[Exif SubIFD] Date/Time Original = 2002:11:16 15:27:01")
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		want := time.Date(2002, 11, 16, 15, 27, 1, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("Extract() = %v, want %v", got, want)
		}
	})

	t.Run("line without check is no match", func(t *testing.T) {
		_, err := e.Extract("[Jpeg] Image Height = 480 pixels")
		if !errors.Is(err, ErrNoMatch) {
			t.Errorf("Extract() error = %v, want ErrNoMatch", err)
		}
	})

	t.Run("ignored value is no match", func(t *testing.T) {
		_, err := e.Extract("[Exif IFD0] Date/Time = 0000:00:00 00:00:00")
		if !errors.Is(err, ErrNoMatch) {
			t.Errorf("Extract() error = %v, want ErrNoMatch", err)
		}
	})

	t.Run("unparseable value is a format error", func(t *testing.T) {
		_, err := e.Extract("[Exif IFD0] Date/Time = sometime last week")
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Fatalf("Extract() error = %v, want *FormatError", err)
		}
		if fe.Value != "sometime last week" {
			t.Errorf("FormatError.Value = %q, want %q", fe.Value, "sometime last week")
		}
	})
}

func TestCaptureList_FirstMatchWins(t *testing.T) {
	first, _ := NewCapture("Extension", `Expected File Name Extension = (\w+)`, nil)
	second, _ := NewCapture("", `= (\w+)$`, nil)
	list := CaptureList{first, second}

	got, ok := list.Find("[File Type] Expected File Name Extension = jpg")
	if !ok || got != "jpg" {
		t.Errorf("Find() = %q, %v, want %q, true", got, ok, "jpg")
	}

	got, ok = list.Find("[Other] Something = value")
	if !ok || got != "value" {
		t.Errorf("Find() = %q, %v, want %q, true", got, ok, "value")
	}
}
