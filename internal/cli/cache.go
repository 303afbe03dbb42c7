package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/mashix/internal/sketchcache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the sketch cache",
}

var cacheDir string

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheDir, "sketch-cache", "", "Sketch cache directory (defaults to the configured one)")

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show how many sketches are cached",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			c := openCache(cmd)
			n, err := c.TotalCount(cmdContextOrBackground(cmd))
			if err != nil {
				exitError("%v", err)
			}
			fmt.Printf("%s: %d sketches\n", c.Root(), n)
		},
	})

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached sketch",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			c := openCache(cmd)
			n, err := c.Clear(cmdContextOrBackground(cmd))
			if err != nil {
				exitError("%v", err)
			}
			fmt.Printf("Removed %d sketches from %s\n", n, c.Root())
		},
	})
}

func openCache(cmd *cobra.Command) *sketchcache.FSCache {
	cfg := loadConfig(cmd)
	dir := cfg.SketchCache
	if cmd.Flags().Changed("sketch-cache") {
		dir = cacheDir
	}
	if dir == "" {
		exitError("no sketch cache configured; pass --sketch-cache")
	}

	c, err := sketchcache.NewFSCache(dir)
	if err != nil {
		exitError("%v", err)
	}
	return c
}

func cmdContextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
