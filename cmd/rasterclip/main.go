package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rshade/rasterclip/internal/cli"
	"github.com/rshade/rasterclip/pkg/version"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(version.GetVersion())
	return root.ExecuteContext(ctx)
}

// extractExitCode maps the error returned by run to the process exit code.
func extractExitCode(err error) int {
	return cli.ExitCode(err)
}

func main() {
	err := run()
	if err != nil {
		cli.PrintError(os.Stderr, err)
	}
	os.Exit(extractExitCode(err))
}
