package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/storefront/internal/cmd"
	"github.com/felixgeelhaar/storefront/internal/exitcode"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) && !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "\nOperation cancelled")
			exitcode.Exit(exitcode.Interrupted)
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", cmd.ErrorMessage(err))
		exitcode.ExitWithError(err)
	}
	exitcode.Exit(exitcode.Success)
}
