package place

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultQueueSize is the capacity of the queue between resolution and placement.
const DefaultQueueSize = 100

// State is the lifecycle position of a file in a run.
type State string

const (
	StateDiscovered   State = "discovered"
	StateResolving    State = "resolving"
	StateAlreadyKnown State = "already_known"
	StateResolved     State = "resolved"
	StatePlacing      State = "placing"
	StateFailed       State = "failed"
)

// Stats counts what happened to each file of a run.
type Stats struct {
	Discovered  int
	Known       int
	Placed      int
	Skipped     int
	Overwritten int
	Restored    int
	Replaced    int
	Failed      int
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// BatchSize bounds concurrent resolutions, each of which may run a metadata subprocess.
	BatchSize int
	// QueueSize is the capacity of the resolution-to-placement queue.
	QueueSize int
	// Strict aborts the run on the first failed file instead of skipping it.
	Strict bool
}

// Pipeline walks an input tree, resolves files concurrently and places them
// one at a time.
type Pipeline struct {
	resolver *Resolver
	engine   *Engine
	index    Index
	fs       FileSystem
	opts     PipelineOptions
	logger   Logger
	progress Progress

	mu      sync.Mutex
	stats   Stats
	claimed map[string]bool
}

// NewPipeline composes a resolver and engine over the shared index and filesystem.
func NewPipeline(resolver *Resolver, engine *Engine, index Index, fs FileSystem, opts PipelineOptions, logger Logger) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Pipeline{
		resolver: resolver,
		engine:   engine,
		index:    index,
		fs:       fs,
		opts:     opts,
		logger:   logger,
		progress: nopProgress{},
	}
}

// SetProgress installs a progress reporter ticked once per finished file.
func (p *Pipeline) SetProgress(progress Progress) {
	p.progress = progress
}

// Run processes every file under input. In strict mode the first failed file
// ends the run with its error; otherwise failures are logged and counted.
func (p *Pipeline) Run(ctx context.Context, input string) (Stats, error) {
	p.mu.Lock()
	p.stats = Stats{}
	p.claimed = make(map[string]bool)
	p.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	queue := make(chan *FileTarget, p.opts.QueueSize)

	g.Go(func() error {
		defer close(queue)
		return p.produce(ctx, input, queue)
	})

	g.Go(func() error {
		return p.consume(ctx, queue)
	})

	err := g.Wait()

	p.mu.Lock()
	stats := p.stats
	p.mu.Unlock()
	return stats, err
}

// produce walks input and resolves files under a permit of BatchSize.
// A permit is held until the target is queued, so a full queue stalls the walk.
func (p *Pipeline) produce(ctx context.Context, input string, queue chan<- *FileTarget) error {
	sem := semaphore.NewWeighted(int64(p.opts.BatchSize))
	tasks, ctx := errgroup.WithContext(ctx)

	walkErr := p.fs.Walk(input, func(path string) error {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		p.count(func(s *Stats) { s.Discovered++ })
		p.logger.Debug("file state", "path", path, "state", StateDiscovered)

		tasks.Go(func() error {
			defer sem.Release(1)
			t, err := p.parse(ctx, path)
			if err != nil {
				return p.fail(path, err)
			}
			select {
			case queue <- t:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		return nil
	})

	taskErr := tasks.Wait()
	if taskErr != nil {
		return taskErr
	}
	if walkErr != nil {
		return fmt.Errorf("walking %s: %w", input, walkErr)
	}
	return nil
}

// parse hashes the file and resolves it unless the index already knows the
// content from an earlier run. Content first claimed during this run is
// resolved again so an earlier-dated duplicate can still supersede it.
func (p *Pipeline) parse(ctx context.Context, path string) (*FileTarget, error) {
	hash, err := p.fs.Hash(path)
	if err != nil {
		return nil, &FileError{Path: path, Stage: StageHash, Err: err}
	}
	t := NewFileTarget(path, hash)

	record, err := p.index.Lookup(hash)
	if err != nil {
		return nil, &FileError{Path: path, Stage: StageLookup, Err: err}
	}
	if record != nil && !p.isClaimed(hash) {
		p.known(t, record)
		return t, nil
	}

	p.logger.Debug("file state", "path", path, "state", StateResolving)
	if err := p.resolver.Resolve(ctx, t); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if record != nil {
			p.logger.Debug("resolution failed for recorded content", "path", path, "error", err)
			p.known(t, record)
			return t, nil
		}
		return nil, &FileError{Path: path, Stage: StageResolve, Err: err}
	}
	p.logger.Debug("file state", "path", path, "state", StateResolved, "earliest", t.Earliest)
	return t, nil
}

func (p *Pipeline) known(t *FileTarget, record *ContentRecord) {
	t.AlreadyKnown = true
	t.Record = record
	p.logger.Debug("file state", "path", t.SourcePath, "state", StateAlreadyKnown, "hash", t.Hash)
}

func (p *Pipeline) claim(hash string) {
	p.mu.Lock()
	p.claimed[hash] = true
	p.mu.Unlock()
}

func (p *Pipeline) isClaimed(hash string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.claimed[hash]
}

// consume places queued targets one at a time. After cancellation it drains
// the queue without placing so producers can exit.
func (p *Pipeline) consume(ctx context.Context, queue <-chan *FileTarget) error {
	for t := range queue {
		if ctx.Err() != nil {
			continue
		}
		if t.AlreadyKnown {
			p.count(func(s *Stats) { s.Known++ })
		} else {
			// Claimed before the index write so a concurrent parse that
			// sees the record also sees the claim.
			p.claim(t.Hash)
		}

		p.logger.Debug("file state", "path", t.SourcePath, "state", StatePlacing)
		outcome, err := p.engine.Place(t)
		if err != nil {
			if ferr := p.fail(t.SourcePath, &FileError{Path: t.SourcePath, Stage: StagePlace, Err: err}); ferr != nil {
				return ferr
			}
			continue
		}
		p.logger.Debug("file state", "path", t.SourcePath, "state", outcome)
		p.count(func(s *Stats) {
			switch outcome {
			case OutcomePlaced:
				s.Placed++
			case OutcomeSkipped:
				s.Skipped++
			case OutcomeOverwritten:
				s.Overwritten++
			case OutcomeRestored:
				s.Restored++
			case OutcomeReplaced:
				s.Replaced++
			}
		})
		p.progress.Increment()
	}
	return nil
}

// fail applies the failure policy. It returns nil when the run should continue.
func (p *Pipeline) fail(path string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	p.count(func(s *Stats) { s.Failed++ })
	p.progress.Increment()
	p.logger.Debug("file state", "path", path, "state", StateFailed)

	if p.opts.Strict || !IsFileFatal(err) {
		return err
	}
	p.logger.Error("skipping file", "path", path, "error", err)
	return nil
}

func (p *Pipeline) count(update func(*Stats)) {
	p.mu.Lock()
	update(&p.stats)
	p.mu.Unlock()
}
