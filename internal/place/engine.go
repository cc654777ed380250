package place

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MaxCollisions bounds the numbered names tried for one destination.
const MaxCollisions = 1000

// Outcome is the terminal result of a successful placement.
type Outcome int

const (
	// OutcomePlaced means the file was copied to a new destination.
	OutcomePlaced Outcome = iota
	// OutcomeSkipped means identical content was already in place.
	OutcomeSkipped
	// OutcomeOverwritten means the destination held different bytes and was replaced.
	OutcomeOverwritten
	// OutcomeRestored means a recorded placement was missing and was re-created.
	OutcomeRestored
	// OutcomeReplaced means an earlier-dated duplicate superseded a recorded placement.
	OutcomeReplaced
)

func (o Outcome) String() string {
	switch o {
	case OutcomePlaced:
		return "placed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeOverwritten:
		return "overwritten"
	case OutcomeRestored:
		return "restored"
	case OutcomeReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// EngineOptions configures destination naming.
type EngineOptions struct {
	OutputRoot string
	// RenameWithDate replaces the file stem with the resolved YYYY-MM-DD.
	RenameWithDate bool
	// RetainSuffix lists original extensions kept even when metadata reports another type.
	RetainSuffix []string
	// MaxCollisions overrides the package default when positive.
	MaxCollisions int
}

// Engine turns resolved FileTargets into files under the output root and
// records in the index. Placements are serialized.
type Engine struct {
	index  Index
	fs     FileSystem
	opts   EngineOptions
	retain map[string]bool
	logger Logger

	mu sync.Mutex
}

// NewEngine creates a placement engine writing under opts.OutputRoot.
func NewEngine(index Index, fs FileSystem, opts EngineOptions, logger Logger) *Engine {
	retain := make(map[string]bool, len(opts.RetainSuffix))
	for _, s := range opts.RetainSuffix {
		retain[strings.ToLower(strings.TrimPrefix(s, "."))] = true
	}
	if opts.MaxCollisions <= 0 {
		opts.MaxCollisions = MaxCollisions
	}
	return &Engine{
		index:  index,
		fs:     fs,
		opts:   opts,
		retain: retain,
		logger: logger,
	}
}

// Path joins recorded path parts onto the output root.
func (e *Engine) Path(parts []string) string {
	return filepath.Join(append([]string{e.opts.OutputRoot}, parts...)...)
}

// Place commits t to the destination tree and the index.
//
// Content never seen before gets a fresh collision-free path. Content already
// recorded is reconciled: a strictly earlier timestamp moves the placement,
// otherwise the recorded placement is verified and restored if missing.
func (e *Engine) Place(t *FileTarget) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// t.Record was read at parse time and may have been superseded since.
	record, err := e.index.Lookup(t.Hash)
	if err != nil {
		return 0, fmt.Errorf("looking up %s: %w", t.Hash, err)
	}
	if record == nil {
		record = t.Record
	}

	if record == nil {
		outcome, err := e.placeNew(t)
		if !errors.Is(err, ErrDuplicateKey) {
			return outcome, err
		}
		e.logger.Debug("hash claimed by another placement, reconciling", "path", t.SourcePath, "hash", t.Hash)
		record, err = e.index.Lookup(t.Hash)
		if err != nil {
			return 0, fmt.Errorf("looking up %s: %w", t.Hash, err)
		}
		if record == nil {
			return 0, fmt.Errorf("record for %s missing after duplicate key", t.Hash)
		}
	}

	return e.reconcile(t, record)
}

func (e *Engine) placeNew(t *FileTarget) (Outcome, error) {
	if t.Earliest.IsZero() {
		return 0, fmt.Errorf("placing %s: %w", t.SourcePath, ErrNoTimestampFound)
	}
	parts, err := e.generate(t)
	if err != nil {
		return 0, err
	}

	record := &ContentRecord{Hash: t.Hash, PathParts: parts, Earliest: t.Earliest.Unix()}
	if err := e.index.Insert(record); err != nil {
		return 0, fmt.Errorf("recording %s: %w", t.Hash, err)
	}
	t.PathParts = parts
	return e.commit(t.SourcePath, t.Hash, parts, t.Earliest)
}

func (e *Engine) reconcile(t *FileTarget, record *ContentRecord) (Outcome, error) {
	if !t.Earliest.IsZero() && t.Earliest.Unix() < record.Earliest {
		return e.supersede(t, record)
	}

	t.PathParts = record.PathParts
	outcome, err := e.commit(t.SourcePath, t.Hash, record.PathParts, record.EarliestTime())
	if err != nil {
		return 0, err
	}
	if outcome == OutcomePlaced {
		e.logger.Info("restored missing placement", "path", t.SourcePath, "dest", e.Path(record.PathParts))
		return OutcomeRestored, nil
	}
	return outcome, nil
}

// supersede moves a recorded placement to the path of an earlier-dated duplicate.
func (e *Engine) supersede(t *FileTarget, record *ContentRecord) (Outcome, error) {
	old := e.Path(record.PathParts)
	if err := e.fs.Remove(old); err != nil {
		return 0, fmt.Errorf("removing superseded %s: %w", old, err)
	}

	parts, err := e.generate(t)
	if err != nil {
		return 0, err
	}
	updated := &ContentRecord{Hash: t.Hash, PathParts: parts, Earliest: t.Earliest.Unix()}
	if err := e.index.Update(updated); err != nil {
		return 0, fmt.Errorf("updating %s: %w", t.Hash, err)
	}

	t.PathParts = parts
	if _, err := e.commit(t.SourcePath, t.Hash, parts, t.Earliest); err != nil {
		return 0, err
	}
	e.logger.Info("earlier duplicate replaced placement",
		"path", t.SourcePath, "old", old, "dest", e.Path(parts))
	return OutcomeReplaced, nil
}

// generate returns the first {stem}[_NN].{ext} under year/month that is not on disk.
func (e *Engine) generate(t *FileTarget) ([]string, error) {
	ts := t.Earliest.UTC()
	year := strconv.Itoa(ts.Year())
	month := fmt.Sprintf("%02d", int(ts.Month()))

	stem := t.Stem
	if e.opts.RenameWithDate {
		stem = ts.Format("2006-01-02")
	}
	ext := e.extension(t)

	for i := 0; i < e.opts.MaxCollisions; i++ {
		name := stem + "." + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%02d.%s", stem, i, ext)
		}
		parts := []string{year, month, name}
		exists, err := e.fs.Exists(e.Path(parts))
		if err != nil {
			return nil, fmt.Errorf("checking destination: %w", err)
		}
		if !exists {
			return parts, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s in %s/%s", ErrTooManyCollisions, stem, ext, year, month)
}

func (e *Engine) extension(t *FileTarget) string {
	if t.CorrectedType == "" || e.retain[t.Extension] {
		return t.Extension
	}
	return t.CorrectedType
}

// commit makes dst hold the bytes of src, stamped with ts.
func (e *Engine) commit(src, hash string, parts []string, ts time.Time) (Outcome, error) {
	dst := e.Path(parts)
	exists, err := e.fs.Exists(dst)
	if err != nil {
		return 0, fmt.Errorf("checking destination: %w", err)
	}
	if !exists {
		if err := e.copy(src, dst, ts); err != nil {
			return 0, err
		}
		e.logger.Info("placed", "path", src, "dest", dst)
		return OutcomePlaced, nil
	}

	existing, err := e.fs.Hash(dst)
	if err != nil {
		return 0, fmt.Errorf("hashing destination: %w", err)
	}
	if existing == hash {
		e.logger.Debug("already in place", "path", src, "dest", dst)
		return OutcomeSkipped, nil
	}

	e.logger.Warn("destination changed since placement, overwriting",
		"path", src, "dest", dst, "want", hash, "found", existing)
	if err := e.copy(src, dst, ts); err != nil {
		return 0, err
	}
	return OutcomeOverwritten, nil
}

func (e *Engine) copy(src, dst string, ts time.Time) error {
	if err := e.fs.CopyFile(src, dst); err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	if err := e.fs.SetTimes(dst, ts); err != nil {
		if !errors.Is(err, errors.ErrUnsupported) {
			return fmt.Errorf("setting times on %s: %w", dst, err)
		}
		e.logger.Debug("creation time not set", "dest", dst, "error", err)
	}
	return nil
}
