// Package runspec loads the YAML file describing one batch run request:
// where the input rows come from, how they map onto flow inputs, and where
// outputs go.
package runspec

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vk/flowbatch/internal/flowerr"
)

// Spec is one batch run request.
type Spec struct {
	// InputDirs maps a source name to a file or directory of input rows.
	InputDirs map[string]string `yaml:"input_dirs"`
	// InputsMapping maps a flow input name to either a "${source.column}"
	// reference or a literal value. Empty means every source column passes
	// through under its own name.
	InputsMapping map[string]string `yaml:"inputs_mapping"`
	// OutputDir is where the run's output artifact is written.
	OutputDir string `yaml:"output_dir"`
	// RunID overrides the generated run identifier when set.
	RunID string `yaml:"run_id"`
	// MaxLines truncates the batch when positive.
	MaxLines int `yaml:"max_lines"`
	// RaiseOnLineFailure makes the run fail on any failed line instead of
	// recording the failure and continuing.
	RaiseOnLineFailure bool `yaml:"raise_on_line_failure"`
}

// Load reads and validates a run spec file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.TargetInputs, err, "failed to read run spec %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a run spec from raw YAML. Unknown fields are
// rejected so a typo does not silently drop a setting.
func Parse(data []byte) (*Spec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var spec Spec
	if err := dec.Decode(&spec); err != nil {
		return nil, flowerr.Wrap(flowerr.TargetInputs, err, "invalid run spec")
	}
	if len(spec.InputDirs) == 0 {
		return nil, flowerr.New(flowerr.TargetInputs, "run spec must declare at least one input source under input_dirs")
	}
	if spec.MaxLines < 0 {
		return nil, flowerr.New(flowerr.TargetInputs, "max_lines must not be negative")
	}
	return &spec, nil
}
