// Command intelstore records pipeline runs, intel items and telemetry in
// the auditable state store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/intelstore/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "intelstore:", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
