package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/mashix/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a default configuration file",
	Long: `Write a ` + config.ConfigFile + ` with every default into dir (the current
directory by default). Relative paths in the file are resolved against it.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runInit,
}

func runInit(cmd *cobra.Command, args []string) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	cfg, err := config.Initialize(dir)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	fmt.Printf("Wrote %s\n", cfg.Path())
	fmt.Printf("\nSet inputs and output_tag, then run 'mashix run'.\n")
}
