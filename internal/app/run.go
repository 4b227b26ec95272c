package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/vk/flowbatch/internal/batch"
	"github.com/vk/flowbatch/internal/ctxlog"
	"github.com/vk/flowbatch/internal/executor"
	"github.com/vk/flowbatch/internal/inputs"
	"github.com/vk/flowbatch/internal/model"
	"github.com/vk/flowbatch/internal/runspec"
	"github.com/vk/flowbatch/internal/runstorage"
)

// Run executes one batch run as described by the run spec. An interrupt
// signal cancels the run cooperatively, yielding a partial Canceled result
// instead of killing the process mid-write.
func (a *App) Run(ctx context.Context, cfg *Config) (*model.BatchResult, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	spec, err := runspec.Load(cfg.RunSpecPath)
	if err != nil {
		return nil, err
	}

	workingDir := filepath.Dir(cfg.FlowPath)
	processor := inputs.NewProcessor(workingDir, spec.MaxLines)
	lines, err := processor.Process(ctx, spec.InputDirs, spec.InputsMapping)
	if err != nil {
		return nil, err
	}
	a.logger.Info("resolved batch inputs", "lines", len(lines))

	ex, err := a.registry.New(ctx, a.flow, executor.Options{WorkingDir: workingDir})
	if err != nil {
		return nil, err
	}

	store := runstorage.Store(runstorage.Noop{})
	if cfg.StoragePath != "" {
		sqlite, err := runstorage.NewSQLite(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		defer sqlite.Close()
		store = sqlite
	}

	engine := batch.New(a.flow, ex,
		batch.WithWorkers(cfg.Workers),
		batch.WithStorage(store),
	)

	// Interrupts request a cooperative cancel; the engine still assembles a
	// well-formed partial result.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			a.logger.Warn("interrupt received, canceling batch run")
			engine.Cancel()
		}
	}()

	result, err := engine.Run(ctx, batch.Request{
		Lines:              lines,
		OutputDir:          resolveDir(workingDir, spec.OutputDir),
		RunID:              spec.RunID,
		RaiseOnLineFailure: spec.RaiseOnLineFailure,
	})
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(a.outW, "run %s: %d/%d lines completed, %d failed\n",
		result.Status, result.Completed, result.Total, result.Failed)
	return result, nil
}

// resolveDir resolves a possibly-relative directory against the flow's
// working directory, preserving "" (persistence disabled).
func resolveDir(workingDir, dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(workingDir, dir)
}
