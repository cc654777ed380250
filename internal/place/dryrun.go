package place

import (
	"fmt"
	"io/fs"
	"slices"
	"sync"
	"time"
)

// DryRunIndex keeps inserts and updates in memory over a base index that is
// only read.
type DryRunIndex struct {
	base Index

	mu      sync.Mutex
	records map[string]*ContentRecord
}

func NewDryRunIndex(base Index) *DryRunIndex {
	return &DryRunIndex{base: base, records: make(map[string]*ContentRecord)}
}

func (d *DryRunIndex) Lookup(hash string) (*ContentRecord, error) {
	d.mu.Lock()
	r, ok := d.records[hash]
	d.mu.Unlock()
	if ok {
		return cloneRecord(r), nil
	}
	return d.base.Lookup(hash)
}

func (d *DryRunIndex) Insert(record *ContentRecord) error {
	existing, err := d.Lookup(record.Hash)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("inserting %s: %w", record.Hash, ErrDuplicateKey)
	}
	d.mu.Lock()
	d.records[record.Hash] = cloneRecord(record)
	d.mu.Unlock()
	return nil
}

func (d *DryRunIndex) Update(record *ContentRecord) error {
	existing, err := d.Lookup(record.Hash)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("updating %s: %w", record.Hash, ErrNotFound)
	}
	d.mu.Lock()
	d.records[record.Hash] = cloneRecord(record)
	d.mu.Unlock()
	return nil
}

func cloneRecord(r *ContentRecord) *ContentRecord {
	c := *r
	c.PathParts = slices.Clone(r.PathParts)
	return &c
}

// DryRunFileSystem reads through to a base FileSystem but only pretends to
// write: copies and removals are tracked in memory and logged.
type DryRunFileSystem struct {
	FileSystem
	logger Logger

	mu      sync.Mutex
	created map[string]string // destination -> source
	removed map[string]bool
}

func NewDryRunFileSystem(base FileSystem, logger Logger) *DryRunFileSystem {
	return &DryRunFileSystem{
		FileSystem: base,
		logger:     logger,
		created:    make(map[string]string),
		removed:    make(map[string]bool),
	}
}

func (d *DryRunFileSystem) Exists(path string) (bool, error) {
	d.mu.Lock()
	_, created := d.created[path]
	removed := d.removed[path]
	d.mu.Unlock()
	if created {
		return true, nil
	}
	if removed {
		return false, nil
	}
	return d.FileSystem.Exists(path)
}

func (d *DryRunFileSystem) Hash(path string) (string, error) {
	d.mu.Lock()
	src, created := d.created[path]
	removed := d.removed[path]
	d.mu.Unlock()
	if created {
		return d.FileSystem.Hash(src)
	}
	if removed {
		return "", fmt.Errorf("hashing %s: %w", path, fs.ErrNotExist)
	}
	return d.FileSystem.Hash(path)
}

func (d *DryRunFileSystem) CopyFile(src, dst string) error {
	d.mu.Lock()
	d.created[dst] = src
	delete(d.removed, dst)
	d.mu.Unlock()
	d.logger.Info("[dry-run] copy", "path", src, "dest", dst)
	return nil
}

func (d *DryRunFileSystem) SetTimes(path string, t time.Time) error {
	d.logger.Debug("[dry-run] set times", "dest", path, "time", t.Format(time.RFC3339))
	return nil
}

func (d *DryRunFileSystem) Remove(path string) error {
	d.mu.Lock()
	d.removed[path] = true
	delete(d.created, path)
	d.mu.Unlock()
	d.logger.Info("[dry-run] remove", "dest", path)
	return nil
}
