package place

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"mmfplace/internal/dateparse"
)

// ResolverOptions holds the compiled rules a Resolver applies.
type ResolverOptions struct {
	// Blacklist drops any metadata line containing one of these substrings.
	Blacklist []string
	// Dates extracts instants from metadata lines. Nil disables date capture.
	Dates *dateparse.Extractor
	// Types captures a corrected file type from metadata lines.
	Types dateparse.CaptureList
	// Filename extracts an instant from the base name. Nil disables the source.
	Filename *dateparse.Extractor
	// Strict turns a captured but unparseable date into a file failure.
	Strict bool
}

// Resolver determines the earliest credible timestamp of a file from its
// metadata text, filesystem attributes and file name.
type Resolver struct {
	metadata MetadataSource
	fs       FileSystem
	opts     ResolverOptions
	logger   Logger
}

// NewResolver creates a Resolver reading metadata through source and file
// attributes through fs.
func NewResolver(source MetadataSource, fs FileSystem, opts ResolverOptions, logger Logger) *Resolver {
	return &Resolver{
		metadata: source,
		fs:       fs,
		opts:     opts,
		logger:   logger,
	}
}

// Resolve fills in the candidates, corrected type and earliest timestamp of t.
// It returns ErrNoTimestampFound when no source produced a credible candidate.
func (r *Resolver) Resolve(ctx context.Context, t *FileTarget) error {
	candidates, err := r.fromMetadata(ctx, t)
	if err != nil {
		return err
	}

	if c, ok := r.fromAttributes(t.SourcePath); ok {
		candidates = append(candidates, c)
	}

	if r.opts.Filename != nil {
		c, ok, err := r.fromFilename(t.SourcePath)
		if err != nil {
			return err
		}
		if ok {
			candidates = append(candidates, c)
		}
	}

	t.Candidates = candidates
	best, ok := PickEarliest(candidates)
	if !ok {
		return ErrNoTimestampFound
	}
	t.Earliest = best.Value

	r.logger.Debug("timestamp resolved",
		"path", t.SourcePath,
		"earliest", best.Value.Format(time.RFC3339),
		"source", best.Source,
		"candidates", len(candidates),
		"type", t.CorrectedType)
	return nil
}

func (r *Resolver) fromMetadata(ctx context.Context, t *FileTarget) ([]Candidate, error) {
	lines, err := r.metadata.Read(ctx, t.SourcePath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.Warn("metadata unavailable", "path", t.SourcePath, "error", err)
		return nil, nil
	}
	if len(lines) == 0 {
		r.logger.Debug("no metadata lines", "path", t.SourcePath)
		return nil, nil
	}

	var candidates []Candidate
	for _, line := range lines {
		if r.blacklisted(line) {
			r.logger.Debug("blacklisted metadata line", "path", t.SourcePath, "line", line)
			continue
		}

		if t.CorrectedType == "" {
			if typ, ok := r.opts.Types.Find(line); ok {
				t.CorrectedType = strings.ToLower(typ)
			}
		}

		if r.opts.Dates == nil {
			continue
		}
		ts, err := r.opts.Dates.Extract(line)
		if err != nil {
			if errors.Is(err, dateparse.ErrNoMatch) {
				continue
			}
			if r.opts.Strict {
				return nil, fmt.Errorf("%w: %v in line %q", ErrUnrecognizedFormat, err, line)
			}
			r.logger.Debug("unparseable metadata date", "path", t.SourcePath, "line", line, "error", err)
			continue
		}
		if !credible(ts) {
			r.logger.Debug("discarding pre-1975 metadata date", "path", t.SourcePath, "line", line)
			continue
		}
		candidates = append(candidates, Candidate{Value: ts, Source: SourceMetadata})
	}
	return candidates, nil
}

// fromAttributes takes the minimum of the access, modification and creation
// times. Fewer than two available times means the source is absent.
func (r *Resolver) fromAttributes(path string) (Candidate, bool) {
	ft, err := r.fs.Times(path)
	if err != nil {
		r.logger.Warn("file times unavailable", "path", path, "error", err)
		return Candidate{}, false
	}
	if ft.Created.IsZero() {
		r.logger.Debug("creation time unavailable", "path", path)
	}

	var available int
	var earliest time.Time
	for _, v := range []time.Time{ft.Accessed, ft.Modified, ft.Created} {
		if v.IsZero() {
			continue
		}
		available++
		if !credible(v) {
			continue
		}
		if earliest.IsZero() || v.Before(earliest) {
			earliest = v
		}
	}
	if available < 2 {
		r.logger.Debug("fewer than two file times available", "path", path)
		return Candidate{}, false
	}
	if earliest.IsZero() {
		r.logger.Debug("discarding pre-1975 file times", "path", path)
		return Candidate{}, false
	}
	return Candidate{Value: earliest.UTC(), Source: SourceAttributes}, true
}

func (r *Resolver) fromFilename(path string) (Candidate, bool, error) {
	name := filepath.Base(path)
	ts, err := r.opts.Filename.Extract(name)
	if err != nil {
		if errors.Is(err, dateparse.ErrNoMatch) {
			return Candidate{}, false, nil
		}
		if r.opts.Strict {
			return Candidate{}, false, fmt.Errorf("%w: %v in file name %q", ErrUnrecognizedFormat, err, name)
		}
		r.logger.Debug("unparseable file name date", "path", path, "error", err)
		return Candidate{}, false, nil
	}
	if !credible(ts) {
		r.logger.Debug("discarding pre-1975 file name date", "path", path)
		return Candidate{}, false, nil
	}
	return Candidate{Value: ts, Source: SourceFilename}, true, nil
}

func (r *Resolver) blacklisted(line string) bool {
	for _, b := range r.opts.Blacklist {
		if strings.Contains(line, b) {
			return true
		}
	}
	return false
}
