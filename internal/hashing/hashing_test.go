package hashing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		algo    string
		want    string
		wantErr bool
	}{
		{"empty defaults to sha256", "", SHA256, false},
		{"sha256", "sha256", SHA256, false},
		{"blake3", "blake3", BLAKE3, false},
		{"unknown", "md5", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := New(tt.algo)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tt.algo, err, tt.wantErr)
			}
			if err == nil && h.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", h.Name(), tt.want)
			}
		})
	}
}

func TestHasher_Reader(t *testing.T) {
	h, _ := New(SHA256)
	got, err := h.Reader(strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Reader() error = %v", err)
	}
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("Reader() = %q, want %q", got, want)
	}

	b, _ := New(BLAKE3)
	got, err = b.Reader(strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Reader() error = %v", err)
	}
	if len(got) != 64 {
		t.Errorf("len(blake3 digest) = %d, want 64", len(got))
	}
	if got == want {
		t.Error("blake3 digest equals sha256 digest")
	}
}

func TestHasher_File(t *testing.T) {
	h, _ := New(SHA256)

	t.Run("matches reader digest", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.txt")
		if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := h.File(path)
		if err != nil {
			t.Fatalf("File() error = %v", err)
		}
		want, _ := h.Reader(strings.NewReader("hello"))
		if got != want {
			t.Errorf("File() = %q, want %q", got, want)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := h.File(filepath.Join(t.TempDir(), "missing")); err == nil {
			t.Error("File() error = nil, want error")
		}
	})
}
