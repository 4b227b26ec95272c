// Package cli parses command-line arguments into an application config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/flowbatch/internal/app"
	"github.com/vk/flowbatch/internal/batch"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("flowbatch", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
flowbatch - execute a declarative flow once per input record, in batch.

Usage:
  flowbatch [options] -run RUN_SPEC [FLOW_PATH]

Arguments:
  FLOW_PATH
    Path to the .hcl flow definition (alternative to -flow).

Options:
`)
		flagSet.PrintDefaults()
	}

	flowFlag := flagSet.String("flow", "", "Path to the flow definition file.")
	fFlag := flagSet.String("f", "", "Path to the flow definition file (shorthand).")
	runFlag := flagSet.String("run", "", "Path to the YAML run spec describing inputs and outputs.")
	workersFlag := flagSet.Int("workers", batch.DefaultConcurrency, "Line concurrency ceiling for the run.")
	storageFlag := flagSet.String("storage", "", "Path to the run-diagnostics SQLite database. Empty disables diagnostics.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	flowPath := ""
	if *flowFlag != "" {
		flowPath = *flowFlag
	} else if *fFlag != "" {
		flowPath = *fFlag
	} else if flagSet.NArg() > 0 {
		flowPath = flagSet.Arg(0)
	}

	if flowPath == "" {
		flagSet.Usage()
		return nil, true, nil
	}
	if *runFlag == "" {
		return nil, false, &ExitError{Code: 2, Message: "missing -run: a run spec file is required"}
	}
	if *workersFlag < 1 {
		return nil, false, &ExitError{Code: 2, Message: "invalid -workers: must be at least 1"}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	return &app.Config{
		FlowPath:    flowPath,
		RunSpecPath: *runFlag,
		Workers:     *workersFlag,
		StoragePath: *storageFlag,
		LogFormat:   logFormat,
		LogLevel:    logLevel,
	}, false, nil
}
