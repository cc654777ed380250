package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"mmfplace/internal/dateparse"
)

// Default values applied to fields left unset.
const (
	DefaultBatchSize = 8
	DefaultQueueSize = 100
	DefaultHash      = "sha256"
	DefaultBackend   = "java"
	DefaultMaxLine   = 255
)

//go:embed default.toml
var defaultTemplate []byte

// Config represents the mmfplace configuration file.
type Config struct {
	BatchSize    int              `toml:"batch_size" yaml:"batch_size"`
	QueueSize    int              `toml:"queue_size" yaml:"queue_size"`
	Hash         string           `toml:"hash" yaml:"hash"`
	Blacklist    []string         `toml:"blacklist" yaml:"blacklist"`
	RetainSuffix []string         `toml:"retain_suffix" yaml:"retain_suffix"`
	Ignore       []string         `toml:"ignore" yaml:"ignore"`
	DateParse    []CaptureConfig  `toml:"dateparse" yaml:"dateparse"`
	TypeParse    []CaptureConfig  `toml:"typeparse" yaml:"typeparse"`
	Strptimes    []StrptimeConfig `toml:"strptimes" yaml:"strptimes"`
	Filename     FilenameConfig   `toml:"filename" yaml:"filename"`
	Metadata     MetadataConfig   `toml:"metadata" yaml:"metadata"`
	Index        IndexConfig      `toml:"index" yaml:"index"`
}

// CaptureConfig is one regular expression capture applied to a line of text.
type CaptureConfig struct {
	Check   string   `toml:"check,omitempty" yaml:"check,omitempty"` // substring required before the regex is tried
	Regex   string   `toml:"regex" yaml:"regex"`
	Ignores []string `toml:"ignores,omitempty" yaml:"ignores,omitempty"`
}

// StrptimeConfig is a strptime format and a value it must parse.
type StrptimeConfig struct {
	Fmt  string `toml:"fmt" yaml:"fmt"`
	Test string `toml:"test" yaml:"test"`
}

// FilenameConfig controls the file name timestamp source.
type FilenameConfig struct {
	Enabled   bool             `toml:"enabled" yaml:"enabled"`
	DateParse []CaptureConfig  `toml:"dateparse" yaml:"dateparse"`
	Strptimes []StrptimeConfig `toml:"strptimes" yaml:"strptimes"` // falls back to the global list when empty
}

// MetadataConfig selects the metadata backend.
// This uses a tagged union pattern - Backend determines which other fields are relevant.
type MetadataConfig struct {
	Backend string `toml:"backend" yaml:"backend"` // "java", "exiftool", "exif" or "none"

	// java backend
	Java       string `toml:"java,omitempty" yaml:"java,omitempty"`
	ToolsDir   string `toml:"tools_dir,omitempty" yaml:"tools_dir,omitempty"`
	Classpath  string `toml:"classpath,omitempty" yaml:"classpath,omitempty"`
	EntryClass string `toml:"entry_class,omitempty" yaml:"entry_class,omitempty"`

	// exiftool backend
	Exiftool string `toml:"exiftool,omitempty" yaml:"exiftool,omitempty"`

	MaxLine int `toml:"max_line" yaml:"max_line"`
}

// IndexConfig locates the content index and its snapshots.
type IndexConfig struct {
	Path           string `toml:"path" yaml:"path"`
	SnapshotDir    string `toml:"snapshot_dir,omitempty" yaml:"snapshot_dir,omitempty"`
	RecipientsFile string `toml:"recipients_file,omitempty" yaml:"recipients_file,omitempty"`
}

// ApplyDefaults fills in unset scalar fields.
func (c *Config) ApplyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Hash == "" {
		c.Hash = DefaultHash
	}
	if c.Metadata.Backend == "" {
		c.Metadata.Backend = DefaultBackend
	}
	if c.Metadata.MaxLine == 0 {
		c.Metadata.MaxLine = DefaultMaxLine
	}
}

// Validate checks the scalar fields. Patterns and formats are checked by Compile.
func (c *Config) Validate() error {
	var errs []error
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue_size must be positive, got %d", c.QueueSize))
	}
	switch c.Hash {
	case "sha256", "blake3":
	default:
		errs = append(errs, fmt.Errorf("unknown hash algorithm: %s", c.Hash))
	}
	switch c.Metadata.Backend {
	case "java", "exiftool", "exif", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown metadata backend: %s", c.Metadata.Backend))
	}
	if len(c.DateParse) > 0 && len(c.Strptimes) == 0 {
		errs = append(errs, errors.New("dateparse captures need at least one strptimes format"))
	}
	return errors.Join(errs...)
}

// Rules are the compiled capture patterns and parsers of a Config.
type Rules struct {
	Blacklist []string
	Dates     *dateparse.Extractor
	Types     dateparse.CaptureList
	// Filename is nil when the file name source is disabled.
	Filename *dateparse.Extractor
}

// Compile builds the capture lists and parsers. Every strptimes test value
// is parsed so a broken format is reported before any file is processed.
func (c *Config) Compile() (*Rules, error) {
	r := &Rules{Blacklist: c.Blacklist}

	global, err := compileParser("strptimes", c.Strptimes)
	if err != nil {
		return nil, err
	}
	dates, err := compileCaptures("dateparse", c.DateParse)
	if err != nil {
		return nil, err
	}
	if len(dates) > 0 {
		r.Dates = dateparse.NewExtractor(dates, global)
	}
	if r.Types, err = compileCaptures("typeparse", c.TypeParse); err != nil {
		return nil, err
	}

	if c.Filename.Enabled && len(c.Filename.DateParse) > 0 {
		captures, err := compileCaptures("filename.dateparse", c.Filename.DateParse)
		if err != nil {
			return nil, err
		}
		parser := global
		if len(c.Filename.Strptimes) > 0 {
			if parser, err = compileParser("filename.strptimes", c.Filename.Strptimes); err != nil {
				return nil, err
			}
		}
		if parser.Len() == 0 {
			return nil, errors.New("filename.dateparse needs at least one strptimes format")
		}
		r.Filename = dateparse.NewExtractor(captures, parser)
	}
	return r, nil
}

func compileCaptures(section string, entries []CaptureConfig) (dateparse.CaptureList, error) {
	list := make(dateparse.CaptureList, 0, len(entries))
	for i, e := range entries {
		c, err := dateparse.NewCapture(e.Check, e.Regex, e.Ignores)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", section, i, err)
		}
		list = append(list, c)
	}
	return list, nil
}

func compileParser(section string, entries []StrptimeConfig) (*dateparse.Parser, error) {
	formats := make([]dateparse.Format, len(entries))
	for i, e := range entries {
		formats[i] = dateparse.Format{Fmt: e.Fmt, Test: e.Test}
	}
	p, err := dateparse.NewParser(formats)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", section, err)
	}
	return p, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a TOML Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// ReadYAML decodes a YAML Config from the provided reader.
func (m *Manager) ReadYAML(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config as TOML to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from path. Files ending in .yaml or .yml are
// decoded as YAML, everything else as TOML. Defaults are applied.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	var cfg *Config
	if isYAML(path) {
		cfg, err = m.ReadYAML(f)
	} else {
		cfg, err = m.Read(f)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Default returns the configuration the default template describes.
func Default() *Config {
	cfg, err := (&Manager{}).Read(bytes.NewReader(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	cfg.ApplyDefaults()
	return cfg
}

// Init writes the default configuration to path: the commented template for
// TOML files, its YAML rendering for .yaml and .yml. It fails if path exists.
func Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data := defaultTemplate
	if isYAML(path) {
		var err error
		if data, err = yaml.Marshal(Default()); err != nil {
			return fmt.Errorf("encoding default config: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads the config at path, writing the default template first when
// the file does not exist yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Init(path); err != nil {
			return nil, err
		}
	}
	cfg, err := ReadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
