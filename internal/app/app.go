// Package app wires the application together: logger, flow, executor
// registry, run storage, and the batch engine.
package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/flowbatch/internal/executor"
	"github.com/vk/flowbatch/internal/flow"
	"github.com/vk/flowbatch/internal/jsexec"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	FlowPath    string
	RunSpecPath string
	Workers     int
	StoragePath string
	LogFormat   string
	LogLevel    string
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	flow     *flow.Flow
	registry *executor.Registry
}

// coreModules are the execution backends compiled into the binary.
var coreModules = []executor.Module{
	jsexec.Module{},
}

// NewApp constructs the application: it configures an isolated logger, loads
// and validates the flow definition, and registers the executor backends.
func NewApp(outW io.Writer, cfg *Config, modules ...executor.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("logger configured")

	f, err := flow.Load(cfg.FlowPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow: %w", err)
	}
	logger.Debug("flow loaded",
		"flow", f.Name,
		"kind", f.Kind,
		"inputs", len(f.Inputs),
		"nodes", len(f.Nodes),
		"aggregation_nodes", len(f.AggregationNodes()),
	)

	reg := executor.NewRegistry()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("executor backends registered", "kinds", reg.Kinds())

	return &App{
		outW:     outW,
		logger:   logger,
		flow:     f,
		registry: reg,
	}, nil
}

// Flow returns the loaded flow definition. This is primarily for testing.
func (a *App) Flow() *flow.Flow {
	return a.flow
}
