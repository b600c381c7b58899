package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rxscan/rxscan/cmd"
	"github.com/rxscan/rxscan/internal/cmdutil"
	"github.com/rxscan/rxscan/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	// Set up OpenTelemetry.
	otelShutdown, err := telemetry.Setup(ctx, telemetry.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: setting up telemetry: %s\n", err)
		return 1
	}
	// Handle shutdown properly so nothing leaks.
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "error: shutting down telemetry: %s\n", err)
		}
	}()

	err = cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var handled cmdutil.HandledCliError
	if !errors.As(err, &handled) {
		fmt.Fprintf(os.Stderr, "error: %s\n", cmdutil.TranslateError(err))
	}
	return 1
}
