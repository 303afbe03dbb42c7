// Package cli implements the command-line interface for mashix.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/mashix/internal/config"
	"github.com/kilupskalvis/mashix/internal/store"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Layout *config.Layout
	Store  *store.Store
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}

var (
	configPath string
	logLevel   string
	logFormat  string
	outputDir  string

	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "mashix",
	Short: "All-vs-all MASH distance matrices",
	Long: `mashix computes an all-vs-all MASH distance matrix for a collection of
FASTA sequences. Every record is sketched on its own and compared against a
sketch of the whole collection; distances that are not significant are
reported as 1.`,
	SilenceUsage: true,
}

// Execute runs the root command. Cancelling ctx stops a running pipeline.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", os.Getenv("MASHIX_CONFIG"), "Configuration file (defaults to ./"+config.ConfigFile+" when present)")
	pf.StringVar(&logLevel, "log-level", envOrDefault("MASHIX_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", envOrDefault("MASHIX_LOG_FORMAT", "text"), "Log format (json, text)")
	pf.StringVar(&outputDir, "output-dir", "", "Directory holding the per-tag output trees (defaults to the directory of the first input)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(cacheCmd)
}

// loadConfig reads the configuration file and sets up logging.
// Flags and environment variables take precedence over the file's log section.
func loadConfig(cmd *cobra.Command) *config.Config {
	path := configPath
	if path == "" {
		if _, err := os.Stat(config.ConfigFile); err == nil {
			path = config.ConfigFile
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		exitError("%v", err)
	}

	level, format := cfg.Log.Level, cfg.Log.Format
	if cmd.Flags().Changed("log-level") || os.Getenv("MASHIX_LOG_LEVEL") != "" || level == "" {
		level = logLevel
	}
	if cmd.Flags().Changed("log-format") || os.Getenv("MASHIX_LOG_FORMAT") != "" || format == "" {
		format = logFormat
	}
	logger = newLogger(os.Stderr, level, format)
	slog.SetDefault(logger)

	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = outputDir
	}
	return cfg
}

// initContext loads the configuration and opens the ledger of tag.
// An empty tag uses the configured output tag.
func initContext(cmd *cobra.Command, tag string) *cmdContext {
	cfg := loadConfig(cmd)
	if tag != "" {
		cfg.OutputTag = tag
	}
	if cfg.OutputTag == "" {
		exitError("no output tag given and none configured")
	}

	layout := layoutFor(cfg)
	st, err := openLedger(cfg.OutputTag, layout)
	if err != nil {
		exitError("%v", err)
	}

	return &cmdContext{Config: cfg, Layout: layout, Store: st}
}

// openLedger opens the ledger of a finished or running tag. Only a missing
// ledger means there is no run; anything else, such as the lock held by a
// run in progress, is reported as is.
func openLedger(tag string, layout *config.Layout) (*store.Store, error) {
	st, err := store.Open(layout.LedgerPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no run found for tag %q under %s", tag, filepath.Dir(layout.Root))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", layout.LedgerPath(), err)
	}
	return st, nil
}

// layoutFor returns the output layout of cfg, falling back to the working
// directory when neither an output directory nor inputs are configured.
func layoutFor(cfg *config.Config) *config.Layout {
	if cfg.OutputDir == "" && len(cfg.Inputs) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			exitError("%v", err)
		}
		return config.NewLayout(wd, cfg.OutputTag)
	}
	layout, err := cfg.Layout()
	if err != nil {
		exitError("%v", err)
	}
	return layout
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
