package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [tag]",
	Short: "Remove the intermediate files of a run",
	Long: `Remove the partitioned records, sketches and raw distance files of a run,
keeping the results directory. With --all the whole output tree is removed.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runClean,
}

var cleanAll bool

func init() {
	cleanCmd.Flags().BoolVar(&cleanAll, "all", false, "Also remove the results directory")
}

func runClean(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	if len(args) > 0 {
		cfg.OutputTag = args[0]
	}
	if cfg.OutputTag == "" {
		exitError("no output tag given and none configured")
	}

	layout := layoutFor(cfg)
	if _, err := os.Stat(layout.Root); err != nil {
		exitError("no output for tag %q at %s", cfg.OutputTag, layout.Root)
	}

	if cleanAll {
		if err := os.RemoveAll(layout.Root); err != nil {
			exitError("failed to remove %s: %v", layout.Root, err)
		}
		fmt.Printf("Removed %s\n", layout.Root)
		return
	}

	if err := layout.Clean(); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Removed intermediate files under %s\n", layout.Root)
}
