package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/replicate/cacheplayer/cmd"
	"github.com/replicate/cacheplayer/pkg/logging"
)

func main() {
	logging.SetupLogger()
	rootCMD := cmd.GetRootCommand()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCMD.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
