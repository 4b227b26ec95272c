package batch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/vk/flowbatch/internal/ctxlog"
	"github.com/vk/flowbatch/internal/flowerr"
	"github.com/vk/flowbatch/internal/model"
)

// OutputFileName is the run's output artifact inside the output directory.
const OutputFileName = "output.jsonl"

// LineNumberKey is the JSON key carrying the line index in each persisted
// output record.
const LineNumberKey = "line_number"

// persistOutputs writes one line-delimited JSON record per completed line
// into the output directory. Failed and canceled lines leave no record. The
// results slice must already be sorted by index.
func persistOutputs(ctx context.Context, results []*model.LineResult, outputDir string) error {
	logger := ctxlog.FromContext(ctx)
	if outputDir == "" {
		logger.Debug("no output directory configured, skipping output persistence")
		return nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return flowerr.Wrap(flowerr.TargetBatch, err, "failed to create output directory %s", outputDir)
	}
	path := filepath.Join(outputDir, OutputFileName)
	file, err := os.Create(path)
	if err != nil {
		return flowerr.Wrap(flowerr.TargetBatch, err, "failed to create output file %s", path)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	written := 0
	for _, r := range results {
		if r.Status != model.StatusCompleted {
			continue
		}
		record := make(map[string]any, len(r.Output)+1)
		record[LineNumberKey] = r.Index
		for k, v := range r.Output {
			record[k] = v
		}
		if err := enc.Encode(record); err != nil {
			return flowerr.Wrap(flowerr.TargetBatch, err, "failed to write output record for line %d", r.Index)
		}
		written++
	}
	logger.Debug("persisted line outputs", "path", path, "records", written)
	return nil
}
