// Package config manages mashix configuration and the per-run output directory layout.
// It handles loading, saving, validating and initializing the configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pelletier/go-toml/v2"
)

const (
	ConfigFile       = "mashix.toml"
	DefaultKmerSize  = 21
	DefaultThreads   = 1
	DefaultMinCopies = 0
	DefaultPValue    = 0.05
	DefaultDelimiter = ";"
	DefaultMashPath  = "mash"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents a mashix run configuration
type Config struct {
	Inputs       []string  `toml:"inputs"`
	OutputTag    string    `toml:"output_tag"`
	OutputDir    string    `toml:"output_dir,omitempty"` // defaults to the directory of the first input
	Threads      int       `toml:"threads"`
	KmerSize     int       `toml:"kmer_size"`
	MinCopies    int       `toml:"min_copies"`
	PValue       float64   `toml:"p_value"`
	Delimiter    string    `toml:"delimiter"`
	Cleanup      bool      `toml:"cleanup"`
	Resume       bool      `toml:"resume"`
	MashPath     string    `toml:"mash_path"`
	SketchCache  string    `toml:"sketch_cache,omitempty"`
	SQLiteExport bool      `toml:"sqlite_export"`
	Retries      int       `toml:"retries"`
	Log          LogConfig `toml:"log"`
	path         string
}

// LogConfig configures the structured logger
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	return &Config{
		Threads:   DefaultThreads,
		KmerSize:  DefaultKmerSize,
		MinCopies: DefaultMinCopies,
		PValue:    DefaultPValue,
		Delimiter: DefaultDelimiter,
		MashPath:  DefaultMashPath,
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file on top of the defaults.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Relative inputs are resolved against the config file, not the working directory
	base := filepath.Dir(path)
	for i, in := range cfg.Inputs {
		if !filepath.IsAbs(in) {
			cfg.Inputs[i] = filepath.Join(base, in)
		}
	}
	if cfg.OutputDir != "" && !filepath.IsAbs(cfg.OutputDir) {
		cfg.OutputDir = filepath.Join(base, cfg.OutputDir)
	}

	cfg.path = path
	return cfg, nil
}

// Save writes the configuration to disk
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("config has no path")
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(c.path, data, 0644)
}

// Path returns the file the configuration was loaded from
func (c *Config) Path() string {
	return c.path
}

// Initialize writes a default configuration file into dir
func Initialize(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%s already exists", path)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := Default()
	cfg.path = path
	if err := cfg.Save(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every run parameter. It never touches the filesystem.
func (c *Config) Validate() error {
	if len(c.Inputs) == 0 {
		return fmt.Errorf("%w: no input files", ErrInvalid)
	}
	if c.OutputTag == "" {
		return fmt.Errorf("%w: output tag is required", ErrInvalid)
	}
	if strings.ContainsAny(c.OutputTag, `/\`) || c.OutputTag == "." || c.OutputTag == ".." {
		return fmt.Errorf("%w: output tag %q must be a plain name", ErrInvalid, c.OutputTag)
	}
	if c.Threads < 1 {
		return fmt.Errorf("%w: threads must be >= 1, got %d", ErrInvalid, c.Threads)
	}
	if c.KmerSize < 1 || c.KmerSize > 32 {
		return fmt.Errorf("%w: kmer size must be in [1,32], got %d", ErrInvalid, c.KmerSize)
	}
	if c.MinCopies < 0 {
		return fmt.Errorf("%w: min copies must be >= 0, got %d", ErrInvalid, c.MinCopies)
	}
	if c.PValue <= 0 || c.PValue > 1 {
		return fmt.Errorf("%w: p-value threshold must be in (0,1], got %g", ErrInvalid, c.PValue)
	}
	if utf8.RuneCountInString(c.Delimiter) != 1 || c.Delimiter == "\n" || c.Delimiter == "\r" {
		return fmt.Errorf("%w: delimiter must be a single character, got %q", ErrInvalid, c.Delimiter)
	}
	// The space is the matrix header cell and the backslash escapes delimiters inside ids.
	if c.Delimiter == " " || c.Delimiter == `\` {
		return fmt.Errorf("%w: delimiter %q is reserved", ErrInvalid, c.Delimiter)
	}
	if c.MashPath == "" {
		return fmt.Errorf("%w: mash path is empty", ErrInvalid)
	}
	if c.Retries < 0 {
		return fmt.Errorf("%w: retries must be >= 0, got %d", ErrInvalid, c.Retries)
	}
	return nil
}

// DelimiterRune returns the output delimiter as a rune
func (c *Config) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

// Layout returns the output directory layout for this configuration
func (c *Config) Layout() (*Layout, error) {
	dir := c.OutputDir
	if dir == "" {
		if len(c.Inputs) == 0 {
			return nil, fmt.Errorf("%w: no input files", ErrInvalid)
		}
		abs, err := filepath.Abs(c.Inputs[0])
		if err != nil {
			return nil, err
		}
		dir = filepath.Dir(abs)
	}
	return NewLayout(dir, c.OutputTag), nil
}
