package cli

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/mashix/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [tag]",
	Short: "Show the state of a run",
	Long:  `Show the last run recorded for a tag and the state of its jobs.`,
	Args:  cobra.MaximumNArgs(1),
	Run:   runStatus,
}

var (
	statusRuns    bool
	statusVerbose bool
)

func init() {
	statusCmd.Flags().BoolVar(&statusRuns, "runs", false, "List every recorded run")
	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "List every job")
}

func runStatus(cmd *cobra.Command, args []string) {
	var tag string
	if len(args) > 0 {
		tag = args[0]
	}
	c := initContext(cmd, tag)
	defer c.Close()

	st := c.Store
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	if statusRuns {
		runs, err := st.ListRuns()
		if err != nil {
			exitError("failed to list runs: %v", err)
		}
		for _, r := range runs {
			yellow.Printf("%s ", r.ShortID())
			fmt.Printf("%s  %d records, %d failed  ", r.StartedAt.Format("2006-01-02 15:04:05"), r.Units, r.Failed)
			printRunState(r, green, red)
		}
		return
	}

	run, err := st.GetLastRun()
	if err != nil {
		exitError("failed to read run: %v", err)
	}
	if run == nil {
		fmt.Println("No runs yet")
		return
	}

	yellow.Printf("run %s\n", run.ID)
	fmt.Printf("Tag:      %s\n", run.Tag)
	fmt.Printf("Started:  %s\n", run.StartedAt.Format("Mon Jan 2 15:04:05 2006"))
	if !run.FinishedAt.IsZero() {
		fmt.Printf("Finished: %s (%s)\n", run.FinishedAt.Format("Mon Jan 2 15:04:05 2006"),
			run.FinishedAt.Sub(run.StartedAt).Round(1e6))
	}
	if run.Matrix != "" {
		fmt.Printf("Matrix:   %s\n", run.Matrix)
	}
	fmt.Print("State:    ")
	printRunState(run, green, red)

	counts, err := st.CountJobs()
	if err != nil {
		exitError("failed to count jobs: %v", err)
	}
	fmt.Printf("\nJobs: %d done, %d failed, %d skipped, %d running\n",
		counts[models.JobDone], counts[models.JobFailed], counts[models.JobSkipped], counts[models.JobRunning])

	var jobs []*models.JobRecord
	if statusVerbose {
		jobs, err = st.ListJobs()
	} else {
		jobs, err = st.ListJobsByStatus(models.JobFailed)
	}
	if err != nil {
		exitError("failed to list jobs: %v", err)
	}
	for _, j := range jobs {
		printJob(j, green, red)
	}
}

func printRunState(r *models.Run, green, red *color.Color) {
	switch {
	case r.Complete:
		green.Println("complete")
	case r.FinishedAt.IsZero():
		red.Println("interrupted")
	case r.Matrix != "":
		red.Println("partial")
	default:
		red.Println("failed")
	}
}

func printJob(j *models.JobRecord, green, red *color.Color) {
	name := filepath.Base(j.UnitPath)
	switch j.Status {
	case models.JobDone:
		green.Printf("  %-8s ", j.Status)
	case models.JobFailed:
		red.Printf("  %-8s ", j.Status)
	default:
		fmt.Printf("  %-8s ", j.Status)
	}
	fmt.Printf("%s  %s", name, j.RecordID)
	if d := j.Duration(); d > 0 {
		fmt.Printf("  %s", d.Round(1e6))
	}
	if j.CacheHit {
		fmt.Print("  (cached)")
	}
	if j.Error != "" {
		fmt.Printf("\n           %s", j.Error)
	}
	fmt.Println()
}
