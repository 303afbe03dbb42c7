package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/mashix/internal/config"
	"github.com/kilupskalvis/mashix/internal/core"
	"github.com/kilupskalvis/mashix/internal/mash"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [input...]",
	Short: "Compute the distance matrix of a set of FASTA files",
	Long: `Partition the inputs into one file per record, sketch the whole collection
as the reference, compare every record against it and write the square
distance matrix to <output-dir>/<tag>/results/<tag>.csv.

A run in which some records failed still writes the matrix of the others and
exits with status 1.`,
	Run: runRun,
}

var runFlags struct {
	inputs    []string
	tag       string
	threads   int
	kmerSize  int
	minCopies int
	pValue    float64
	delimiter string
	remove    bool
	resume    bool
	mashPath  string
	cache     string
	sqlite    bool
	retries   int
	quiet     bool
}

func init() {
	f := runCmd.Flags()
	f.StringSliceVarP(&runFlags.inputs, "input", "i", nil, "Input FASTA file (repeatable)")
	f.StringVarP(&runFlags.tag, "output-tag", "o", "", "Name of the run and of its output directory")
	f.IntVarP(&runFlags.threads, "threads", "t", config.DefaultThreads, "Concurrent jobs")
	f.IntVarP(&runFlags.kmerSize, "kmers", "k", config.DefaultKmerSize, "k-mer size")
	f.IntVarP(&runFlags.minCopies, "min-copies", "m", config.DefaultMinCopies, "Minimum k-mer copies in query sketches (0 disables the filter)")
	f.Float64VarP(&runFlags.pValue, "p-value", "p", config.DefaultPValue, "Keep distances with a p-value below this threshold")
	f.StringVar(&runFlags.delimiter, "delimiter", config.DefaultDelimiter, "Matrix field delimiter")
	f.BoolVar(&runFlags.remove, "remove", false, "Remove intermediate files, keeping only results")
	f.BoolVar(&runFlags.resume, "resume", false, "Reuse results of a previous run with the same inputs and parameters")
	f.StringVar(&runFlags.mashPath, "mash", config.DefaultMashPath, "Path to the mash executable")
	f.StringVar(&runFlags.cache, "sketch-cache", "", "Directory caching query sketches across runs")
	f.BoolVar(&runFlags.sqlite, "sqlite", false, "Also export the matrix to <tag>.db")
	f.IntVar(&runFlags.retries, "retries", 0, "Retries for engine invocations killed by a signal")
	f.BoolVarP(&runFlags.quiet, "quiet", "q", false, "Do not print progress")
}

// applyRunFlags overlays explicitly set flags and positional inputs on cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, args []string) {
	f := cmd.Flags()
	if f.Changed("input") {
		cfg.Inputs = append([]string(nil), runFlags.inputs...)
	}
	cfg.Inputs = append(cfg.Inputs, args...)

	if f.Changed("output-tag") {
		cfg.OutputTag = runFlags.tag
	}
	if f.Changed("threads") {
		cfg.Threads = runFlags.threads
	}
	if f.Changed("kmers") {
		cfg.KmerSize = runFlags.kmerSize
	}
	if f.Changed("min-copies") {
		cfg.MinCopies = runFlags.minCopies
	}
	if f.Changed("p-value") {
		cfg.PValue = runFlags.pValue
	}
	if f.Changed("delimiter") {
		cfg.Delimiter = runFlags.delimiter
	}
	if f.Changed("remove") {
		cfg.Cleanup = runFlags.remove
	}
	if f.Changed("resume") {
		cfg.Resume = runFlags.resume
	}
	if f.Changed("mash") {
		cfg.MashPath = runFlags.mashPath
	}
	if f.Changed("sketch-cache") {
		cfg.SketchCache = runFlags.cache
	}
	if f.Changed("sqlite") {
		cfg.SQLiteExport = runFlags.sqlite
	}
	if f.Changed("retries") {
		cfg.Retries = runFlags.retries
	}
}

// newEngine returns the mash client, wrapped for retries when configured.
func newEngine(cfg *config.Config, logger *slog.Logger) (mash.Engine, error) {
	client, err := mash.NewClient(cfg.MashPath, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Retries > 0 {
		return mash.NewRetryEngine(client, mash.DefaultRetryConfig(cfg.Retries), logger), nil
	}
	return client, nil
}

func runRun(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	applyRunFlags(cmd, cfg, args)

	if err := cfg.Validate(); err != nil {
		exitError("%v", err)
	}

	eng, err := newEngine(cfg, logger)
	if err != nil {
		exitError("%v", err)
	}

	opts := core.RunOptions{Engine: eng, Logger: logger}
	if !runFlags.quiet {
		opts.Progress = func(done, total int) {
			fmt.Fprintf(os.Stderr, "\r  jobs %d/%d", done, total)
			if done == total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := core.Run(ctx, cfg, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) && result != nil {
			fmt.Fprintln(os.Stderr)
			color.New(color.FgYellow).Fprintf(os.Stderr, "interrupted: %d jobs not run\n", result.Skipped)
			fmt.Fprintln(os.Stderr, "Run again with --resume to continue.")
			os.Exit(130)
		}
		if result != nil {
			printFailures(result)
		}
		exitError("%v", err)
	}

	printSummary(result)
	if !result.Complete() {
		color.New(color.FgYellow).Fprintf(os.Stderr, "warning: %d of %d records failed; the matrix is partial\n",
			len(result.Failures), result.Run.Units)
		os.Exit(1)
	}
}

func printSummary(result *core.RunResult) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	yellow.Printf("run %s ", result.Run.ShortID())
	fmt.Printf("(%s)\n", result.Run.Tag)
	green.Printf("Matrix written to %s\n", result.MatrixPath)
	if result.SQLitePath != "" {
		green.Printf("SQLite export written to %s\n", result.SQLitePath)
	}

	fmt.Printf("  %d records, %d rows", result.Run.Units, result.Rows())
	if result.Resumed > 0 {
		fmt.Printf(", %d reused", result.Resumed)
	}
	if result.CacheHits > 0 {
		fmt.Printf(", %d cached sketches", result.CacheHits)
	}
	fmt.Println()

	printFailures(result)
}

func printFailures(result *core.RunResult) {
	if len(result.Failures) == 0 {
		return
	}
	red := color.New(color.FgRed)
	fmt.Printf("\nFailed records:\n")
	for _, f := range result.Failures {
		red.Printf("  %s", filepath.Base(f.UnitPath))
		fmt.Printf(" (%s): %v\n", f.RecordID, f.Err)
	}
}
