package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/flowbatch/internal/app"
	"github.com/vk/flowbatch/internal/cli"
	"github.com/vk/flowbatch/internal/model"
)

// main is the entrypoint for the flowbatch application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	batchApp, err := app.NewApp(outW, appConfig)
	if err != nil {
		return err
	}

	result, err := batchApp.Run(context.Background(), appConfig)
	if err != nil {
		return err
	}
	if result.Status == model.StatusCanceled {
		return &cli.ExitError{Code: 130, Message: fmt.Sprintf("batch run canceled: %d of %d lines completed", result.Completed, result.Total)}
	}
	return nil
}
