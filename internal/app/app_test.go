package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/flowbatch/internal/model"
)

const gradingFlowHCL = `
flow {
	name = "grading"
	kind = "javascript"
}

input "score" {
	type = number
}

input "passmark" {
	type    = number
	default = 10
}

node "doubled" {
	expr = "inputs.score * 2"
}

node "grade" {
	expr = "doubled >= inputs.passmark ? 'pass' : 'fail'"
	uses = ["doubled"]
}

node "pass_rate" {
	aggregation = true
	uses        = ["grade"]
	expr        = "setMetric('pass_rate', grade.filter(g => g === 'pass').length / grade.length)"
}

output "result" {
	from = "grade"
}
`

// writeWorkspace lays out a complete runnable workspace: flow definition,
// input data, and run spec.
func writeWorkspace(t *testing.T) (flowPath, runSpecPath string) {
	t.Helper()
	dir := t.TempDir()

	flowPath = filepath.Join(dir, "flow.hcl")
	require.NoError(t, os.WriteFile(flowPath, []byte(gradingFlowHCL), 0o600))

	data := `{"score": 6}
{"score": 2}
{"score": 8}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.jsonl"), []byte(data), 0o600))

	runSpec := `
input_dirs:
  data: data.jsonl
output_dir: out
`
	runSpecPath = filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(runSpecPath, []byte(runSpec), 0o600))
	return flowPath, runSpecPath
}

func testConfig(flowPath, runSpecPath string) *Config {
	return &Config{
		FlowPath:    flowPath,
		RunSpecPath: runSpecPath,
		Workers:     2,
		LogFormat:   "text",
		LogLevel:    "error",
	}
}

func TestApp_EndToEndRun(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	flowPath, runSpecPath := writeWorkspace(t)
	cfg := testConfig(flowPath, runSpecPath)
	out := &bytes.Buffer{}

	application, err := NewApp(out, cfg)
	require.NoError(t, err)

	// --- Act ---
	result, err := application.Run(context.Background(), cfg)

	// --- Assert ---
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, result.Status)
	require.Equal(t, 3, result.Total)
	require.Equal(t, 3, result.Completed)
	// Scores 6 and 8 double past the passmark of 10; 2 does not.
	require.InDelta(t, 2.0/3.0, result.Aggregation.Metrics["pass_rate"], 1e-9)

	// The output artifact sits next to the flow, one record per line.
	outFile := filepath.Join(filepath.Dir(flowPath), "out", "output.jsonl")
	file, err := os.Open(outFile)
	require.NoError(t, err)
	defer file.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		records = append(records, record)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, records, 3)
	require.Equal(t, float64(0), records[0]["line_number"])
	require.Equal(t, "pass", records[0]["result"])
	require.Equal(t, "fail", records[1]["result"])
	require.Equal(t, "pass", records[2]["result"])
}

func TestApp_RunWithStorage(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	flowPath, runSpecPath := writeWorkspace(t)
	cfg := testConfig(flowPath, runSpecPath)
	cfg.StoragePath = filepath.Join(t.TempDir(), "runs.db")

	application, err := NewApp(&bytes.Buffer{}, cfg)
	require.NoError(t, err)

	// --- Act ---
	result, err := application.Run(context.Background(), cfg)

	// --- Assert ---
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, result.Status)
	_, err = os.Stat(cfg.StoragePath)
	require.NoError(t, err, "the diagnostics database must be created")
}

func TestNewApp_InvalidFlow(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	flowPath := filepath.Join(dir, "flow.hcl")
	require.NoError(t, os.WriteFile(flowPath, []byte(`node "a" {`), 0o600))
	cfg := testConfig(flowPath, "")

	// --- Act ---
	_, err := NewApp(&bytes.Buffer{}, cfg)

	// --- Assert ---
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to load flow")
}

func TestApp_RunMissingRunSpec(t *testing.T) {
	t.Parallel()

	flowPath, _ := writeWorkspace(t)
	cfg := testConfig(flowPath, filepath.Join(t.TempDir(), "missing.yaml"))

	application, err := NewApp(&bytes.Buffer{}, cfg)
	require.NoError(t, err)

	_, err = application.Run(context.Background(), cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read run spec")
}
