package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"filippo.io/age"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"mmfplace/internal/config"
	"mmfplace/internal/database"
	"mmfplace/internal/encryption"
	"mmfplace/internal/fs"
	"mmfplace/internal/hashing"
	"mmfplace/internal/metadata"
	"mmfplace/internal/place"
)

// Options are the settings shared by every command.
type Options struct {
	// WorkDir holds the index unless the configuration points elsewhere.
	WorkDir string
	// ToolsDir holds the metadata-extractor jars when the configuration names none.
	ToolsDir string
	LogFile  string
	Verbose  bool
	// Stderr receives log output. Defaults to os.Stderr.
	Stderr io.Writer
	// RunIDs names the run. Defaults to random UUIDs.
	RunIDs place.RunIDs
}

// PlaceOptions are the settings of one placement run.
type PlaceOptions struct {
	Input string
	// Output defaults to DefaultOutput(Input).
	Output string
	// Test runs strictly without writing to the output tree or the index.
	Test           bool
	Strict         bool
	RenameWithDate bool
	// Progress draws a progress bar when stderr is a terminal.
	Progress bool
}

// App is the application layer between the CLI and the placement pipeline.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and records runs in the index on Close.
type App struct {
	cfg     *config.Config
	opts    Options
	index   *database.SQLiteIndex
	hasher  *hashing.Hasher
	clock   place.Clock
	logger  *slog.Logger
	log     place.Logger
	logFile *os.File
	op      *Operation
}

// New creates a fully wired App from the given config.
// command identifies the CLI command being run (e.g. "place", "history").
// The caller must call Close when done.
func New(cfg *config.Config, opts Options, command string) (*App, error) {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.RunIDs == nil {
		opts.RunIDs = place.UUIDRunIDs{}
	}

	hasher, err := hashing.New(cfg.Hash)
	if err != nil {
		return nil, err
	}

	runID := opts.RunIDs.NewRunID()
	logger, logFile, err := newLogger(opts.Stderr, opts.LogFile, runID, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	clock := place.SystemClock{}
	index, err := database.NewIndexFromConfig(cfg.Index, opts.WorkDir, clock)
	if err != nil {
		closeFile(logFile)
		return nil, fmt.Errorf("opening index: %w", err)
	}
	if err := index.CheckMigrations(); err != nil {
		index.Close()
		closeFile(logFile)
		return nil, fmt.Errorf("index schema out of date: %w", err)
	}
	if err := index.EnsureHashAlgorithm(hasher.Name()); err != nil {
		index.Close()
		closeFile(logFile)
		return nil, err
	}

	return &App{
		cfg:     cfg,
		opts:    opts,
		index:   index,
		hasher:  hasher,
		clock:   clock,
		logger:  logger,
		log:     &slogAdapter{l: logger},
		logFile: logFile,
		op:      NewOperation(command, runID),
	}, nil
}

// Place runs the pipeline from po.Input into the output tree and records
// the run. A test run is strict and leaves the output tree and index untouched.
func (a *App) Place(ctx context.Context, po PlaceOptions) (place.Stats, error) {
	input, err := filepath.Abs(po.Input)
	if err != nil {
		return place.Stats{}, fmt.Errorf("resolving input path: %w", err)
	}
	output := po.Output
	if output == "" {
		if output, err = DefaultOutput(input); err != nil {
			return place.Stats{}, err
		}
	}
	if output, err = filepath.Abs(output); err != nil {
		return place.Stats{}, fmt.Errorf("resolving output path: %w", err)
	}

	rules, err := a.cfg.Compile()
	if err != nil {
		return place.Stats{}, fmt.Errorf("compiling config rules: %w", err)
	}

	run, err := a.index.CreateRun(a.op.RunID, input, output, po.Test)
	if err != nil {
		return place.Stats{}, err
	}
	a.op.ID = run.ID
	a.op.DryRun = po.Test

	source := a.openMetadata()
	defer source.Close()

	var (
		index place.Index      = a.index
		fsys  place.FileSystem = fs.NewOSFileSystem(a.hasher, a.cfg.Ignore, output, a.index.Path())
	)
	if po.Test {
		index = place.NewDryRunIndex(index)
		fsys = place.NewDryRunFileSystem(fsys, a.log)
	}
	strict := po.Strict || po.Test

	resolver := place.NewResolver(source, fsys, place.ResolverOptions{
		Blacklist: rules.Blacklist,
		Dates:     rules.Dates,
		Types:     rules.Types,
		Filename:  rules.Filename,
		Strict:    strict,
	}, a.log)
	engine := place.NewEngine(index, fsys, place.EngineOptions{
		OutputRoot:     output,
		RenameWithDate: po.RenameWithDate,
		RetainSuffix:   a.cfg.RetainSuffix,
	}, a.log)
	pipeline := place.NewPipeline(resolver, engine, index, fsys, place.PipelineOptions{
		BatchSize: a.cfg.BatchSize,
		QueueSize: a.cfg.QueueSize,
		Strict:    strict,
	}, a.log)

	var bar *progressbar.ProgressBar
	if po.Progress && isTerminal(a.opts.Stderr) {
		bar = newProgressBar(a.opts.Stderr, countFiles(fsys, input))
		pipeline.SetProgress(barProgress{bar})
	}

	a.logger.Info("run started", "input", input, "output", output, "test", po.Test, "strict", strict)
	stats, err := pipeline.Run(ctx, input)
	if bar != nil {
		bar.Finish()
	}

	a.op.Stats = stats
	switch {
	case err == nil:
		a.op.Status = database.RunStatusSuccess
	case errors.Is(err, context.Canceled):
		a.op.Status = database.RunStatusCanceled
	default:
		a.op.Status = database.RunStatusFailed
	}
	a.logger.Info("run finished", "status", a.op.Status, "summary", a.op.Summary())
	return stats, err
}

// openMetadata builds the configured metadata backend. A backend that cannot
// start is replaced by one that reports itself unavailable for every file.
func (a *App) openMetadata() metadata.Source {
	m := a.cfg.Metadata
	toolsDir := m.ToolsDir
	if toolsDir == "" {
		toolsDir = a.opts.ToolsDir
	}

	source, err := metadata.New(metadata.Options{
		Backend: m.Backend,
		Java: metadata.JavaOptions{
			Java:       m.Java,
			ToolsDir:   toolsDir,
			Classpath:  m.Classpath,
			EntryClass: m.EntryClass,
		},
		Exiftool: m.Exiftool,
		MaxLine:  m.MaxLine,
	})
	if err == nil {
		if err = metadata.Check(source); err != nil {
			source.Close()
		}
	}
	if err != nil {
		a.logger.Warn("metadata source unavailable, using file times and names only",
			"backend", m.Backend, "error", err)
		return metadata.Unavailable{Err: err}
	}
	return source
}

// Duplicates reports groups of files under input that share content.
func (a *App) Duplicates(input string) ([]place.DuplicateGroup, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, fmt.Errorf("resolving input path: %w", err)
	}
	fsys := fs.NewOSFileSystem(a.hasher, a.cfg.Ignore, a.index.Path())
	return place.FindDuplicates(fsys, abs, a.log)
}

// History returns the most recent placement runs.
func (a *App) History(limit int) ([]*database.Run, error) {
	return a.index.ListRuns(limit)
}

// ExportIndex writes a snapshot of the index to dst. The snapshot is
// encrypted to the recipients in recipientsFile, or to a passphrase when
// usePassphrase is set, and written as plain SQLite otherwise.
func (a *App) ExportIndex(dst, recipientsFile string, usePassphrase bool) error {
	if recipientsFile != "" && usePassphrase {
		return errors.New("a snapshot is encrypted to recipients or to a passphrase, not both")
	}

	var recipients []age.Recipient
	switch {
	case recipientsFile != "":
		r, err := encryption.LoadRecipients(recipientsFile)
		if err != nil {
			return err
		}
		recipients = r
	case usePassphrase:
		pass, err := PromptPassphrase(true)()
		if err != nil {
			return err
		}
		r, err := encryption.PassphraseRecipient(pass)
		if err != nil {
			return err
		}
		recipients = []age.Recipient{r}
	}
	return a.writeSnapshot(dst, recipients)
}

// writeSnapshot backs the index up to dst, encrypting it when recipients are given.
func (a *App) writeSnapshot(dst string, recipients []age.Recipient) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("snapshot already exists at %s", dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	if len(recipients) == 0 {
		return a.index.BackupTo(dst)
	}

	tmpDir, err := os.MkdirTemp(filepath.Dir(dst), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	plain := filepath.Join(tmpDir, database.DefaultIndexName)
	if err := a.index.BackupTo(plain); err != nil {
		return err
	}
	if err := encryption.EncryptFile(plain, dst, recipients...); err != nil {
		return fmt.Errorf("encrypting snapshot: %w", err)
	}
	return nil
}

// ImportIndex replaces the index with the snapshot at src. Encrypted
// snapshots are opened with the identities in identityFile or with a
// passphrase. The snapshot must use the configured hash algorithm.
func (a *App) ImportIndex(src, identityFile string, usePassphrase bool) error {
	path := a.index.Path()
	if path == database.MemoryPath {
		return errors.New("cannot import into an in-memory index")
	}

	encrypted, err := encryption.IsEncrypted(src)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	tmpDir, err := os.MkdirTemp(filepath.Dir(path), ".import-*")
	if err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)
	plain := filepath.Join(tmpDir, database.DefaultIndexName)

	if encrypted {
		var identities []age.Identity
		switch {
		case identityFile != "":
			if identities, err = encryption.LoadIdentities(identityFile, PromptPassphrase(false)); err != nil {
				return err
			}
		case usePassphrase:
			pass, err := PromptPassphrase(false)()
			if err != nil {
				return err
			}
			id, err := encryption.PassphraseIdentity(pass)
			if err != nil {
				return err
			}
			identities = []age.Identity{id}
		default:
			return errors.New("snapshot is encrypted: an identity file or passphrase is required")
		}
		if err := encryption.DecryptFile(src, plain, identities...); err != nil {
			return fmt.Errorf("decrypting snapshot: %w", err)
		}
	} else {
		if err := fs.NewOSFileSystem(a.hasher, nil).CopyFile(src, plain); err != nil {
			return fmt.Errorf("copying snapshot: %w", err)
		}
	}

	imported, err := database.NewSQLiteIndex(plain, a.clock)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	err = imported.EnsureHashAlgorithm(a.hasher.Name())
	if cerr := imported.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("checking snapshot: %w", err)
	}

	if err := a.index.Close(); err != nil {
		return fmt.Errorf("closing index: %w", err)
	}
	if err := os.Rename(plain, path); err != nil {
		return fmt.Errorf("replacing index: %w", err)
	}
	if a.index, err = database.NewSQLiteIndex(path, a.clock); err != nil {
		return fmt.Errorf("reopening index: %w", err)
	}
	a.logger.Info("index imported", "from", src, "index", path)
	return nil
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the run record and, after a successful
// real run with a snapshot directory configured, writes an index snapshot.
func (a *App) Close() error {
	var firstErr error
	setErr := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if a.op.Persisted() && a.index != nil {
		if err := a.index.FinishRun(a.op.ID, a.op.Status, a.op.Summary()); err != nil {
			setErr(fmt.Errorf("finishing run: %w", err))
		}
		if !a.op.DryRun && a.op.Status == database.RunStatusSuccess && a.cfg.Index.SnapshotDir != "" {
			if err := a.snapshot(); err != nil {
				setErr(err)
			}
		}
	}

	if a.index != nil {
		if err := a.index.Close(); err != nil {
			setErr(fmt.Errorf("closing index: %w", err))
		}
	}
	closeFile(a.logFile)
	return firstErr
}

// snapshot writes index-<run id>.db, or .db.age when recipients are configured,
// into the snapshot directory.
func (a *App) snapshot() error {
	dir := a.cfg.Index.SnapshotDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(a.opts.WorkDir, dir)
	}
	name := "index-" + a.op.RunID + ".db"

	var recipients []age.Recipient
	if a.cfg.Index.RecipientsFile != "" {
		r, err := encryption.LoadRecipients(a.cfg.Index.RecipientsFile)
		if err != nil {
			return fmt.Errorf("loading snapshot recipients: %w", err)
		}
		recipients = r
		name += ".age"
	}

	dst := filepath.Join(dir, name)
	if err := a.writeSnapshot(dst, recipients); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	a.logger.Info("index snapshot written", "path", dst)
	return nil
}

// GenerateKeys writes a new snapshot key pair. The identity file is protected
// with a passphrase from ask.
func GenerateKeys(recipientPath, identityPath string, ask encryption.PassphraseFunc) error {
	pass, err := ask()
	if err != nil {
		return err
	}
	keys := encryption.Keys{RecipientPath: recipientPath, IdentityPath: identityPath}
	return keys.Generate(pass)
}

// PromptPassphrase returns a PassphraseFunc that reads MMFPLACE_PASSPHRASE
// or, when it is unset, prompts on the terminal. confirm asks twice.
func PromptPassphrase(confirm bool) encryption.PassphraseFunc {
	return func() (string, error) {
		if pass := os.Getenv(EnvPassphrase); pass != "" {
			return pass, nil
		}

		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal for passphrase prompt, set %s", EnvPassphrase)
		}
		pass, err := readPassword(fd, "Passphrase: ")
		if err != nil {
			return "", err
		}
		if pass == "" {
			return "", errors.New("empty passphrase")
		}
		if confirm {
			again, err := readPassword(fd, "Confirm passphrase: ")
			if err != nil {
				return "", err
			}
			if again != pass {
				return "", errors.New("passphrases do not match")
			}
		}
		return pass, nil
	}
}

func readPassword(fd int, prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

type barProgress struct {
	bar *progressbar.ProgressBar
}

func (p barProgress) Increment() { p.bar.Add(1) }

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Placing"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish(),
	)
}

// countFiles walks input once to size the progress bar. Walk errors are
// left for the pipeline to report.
func countFiles(fsys place.FileSystem, input string) int {
	n := 0
	_ = fsys.Walk(input, func(string) error {
		n++
		return nil
	})
	return n
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func closeFile(f *os.File) {
	if f != nil {
		f.Close()
	}
}
