package runspec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/flowbatch/internal/flowerr"
)

func TestParse_Success(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	src := []byte(`
input_dirs:
  data: inputs/data.jsonl
  labels: inputs/labels
inputs_mapping:
  url: ${data.url}
  groundtruth: ${labels.category}
output_dir: runs/out
run_id: eval-42
max_lines: 100
raise_on_line_failure: true
`)

	// --- Act ---
	spec, err := Parse(src)

	// --- Assert ---
	require.NoError(t, err)
	require.Equal(t, "inputs/data.jsonl", spec.InputDirs["data"])
	require.Equal(t, "${labels.category}", spec.InputsMapping["groundtruth"])
	require.Equal(t, "runs/out", spec.OutputDir)
	require.Equal(t, "eval-42", spec.RunID)
	require.Equal(t, 100, spec.MaxLines)
	require.True(t, spec.RaiseOnLineFailure)
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	spec, err := Parse([]byte("input_dirs:\n  data: data.jsonl\n"))

	require.NoError(t, err)
	require.Empty(t, spec.InputsMapping)
	require.Empty(t, spec.OutputDir)
	require.Empty(t, spec.RunID)
	require.Zero(t, spec.MaxLines)
	require.False(t, spec.RaiseOnLineFailure)
}

func TestParse_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		src         string
		errContains string
	}{
		{
			name:        "no input sources",
			src:         "output_dir: out\n",
			errContains: "at least one input source",
		},
		{
			name:        "negative max_lines",
			src:         "input_dirs:\n  data: data.jsonl\nmax_lines: -1\n",
			errContains: "max_lines",
		},
		{
			name:        "unknown field rejected",
			src:         "input_dirs:\n  data: data.jsonl\nmax_lnies: 5\n",
			errContains: "invalid run spec",
		},
		{
			name:        "malformed yaml",
			src:         "input_dirs: [unclosed\n",
			errContains: "invalid run spec",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tc.src))

			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errContains)
			classified, ok := flowerr.As(err)
			require.True(t, ok)
			require.Equal(t, flowerr.TargetInputs, classified.Target)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("input_dirs:\n  data: data.jsonl\n"), 0o600))

	// --- Act ---
	spec, err := Load(path)

	// --- Assert ---
	require.NoError(t, err)
	require.Equal(t, "data.jsonl", spec.InputDirs["data"])

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read run spec")
}
