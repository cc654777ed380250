// Package hashing computes content digests used as deduplication keys.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

const (
	SHA256 = "sha256"
	BLAKE3 = "blake3"
)

// Hasher produces lowercase hex digests with one algorithm.
type Hasher struct {
	name    string
	newHash func() hash.Hash
}

// New returns the Hasher for a named algorithm. An empty name selects sha256.
func New(name string) (*Hasher, error) {
	switch name {
	case "", SHA256:
		return &Hasher{name: SHA256, newHash: sha256.New}, nil
	case BLAKE3:
		return &Hasher{name: BLAKE3, newHash: func() hash.Hash { return blake3.New() }}, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm: %s", name)
	}
}

// Name returns the algorithm name.
func (h *Hasher) Name() string { return h.name }

// Reader digests everything read from r.
func (h *Hasher) Reader(r io.Reader) (string, error) {
	d := h.newHash()
	if _, err := io.Copy(d, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

// File digests the contents of the file at path.
func (h *Hasher) File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	sum, err := h.Reader(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return sum, nil
}
