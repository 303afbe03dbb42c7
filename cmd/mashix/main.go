// Command mashix computes all-vs-all MASH distance matrices for FASTA collections.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kilupskalvis/mashix/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
