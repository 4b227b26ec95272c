// Package inputs resolves raw input files into the per-line input records a
// batch run executes. Each named input source is a file or directory of
// jsonl/json/csv files; an inputs mapping decides how source columns become
// flow inputs.
package inputs

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/vk/flowbatch/internal/ctxlog"
	"github.com/vk/flowbatch/internal/flowerr"
)

// columnRefPattern matches a mapping value referencing a source column, e.g.
// "${data.url}".
var columnRefPattern = regexp.MustCompile(`^\$\{([^.}]+)\.([^}]+)\}$`)

// Processor turns input directories plus an inputs mapping into line records.
type Processor struct {
	workingDir string
	maxLines   int
}

// NewProcessor creates a processor. Relative source paths resolve against
// workingDir; maxLines truncates the batch when positive.
func NewProcessor(workingDir string, maxLines int) *Processor {
	return &Processor{workingDir: workingDir, maxLines: maxLines}
}

// Process loads every input source and applies the mapping, producing one
// input record per line. All sources must carry the same number of rows,
// since mapping references pair rows positionally.
func (p *Processor) Process(ctx context.Context, inputDirs map[string]string, mapping map[string]string) ([]map[string]any, error) {
	logger := ctxlog.FromContext(ctx)
	if len(inputDirs) == 0 {
		return nil, flowerr.New(flowerr.TargetInputs, "no input sources configured")
	}

	sources := make(map[string][]map[string]any, len(inputDirs))
	rowCount := -1
	for _, name := range sortedKeys(inputDirs) {
		path := inputDirs[name]
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.workingDir, path)
		}
		rows, err := readSource(path)
		if err != nil {
			return nil, flowerr.Wrap(flowerr.TargetInputs, err, "failed to read input source '%s'", name)
		}
		if len(rows) == 0 {
			return nil, flowerr.New(flowerr.TargetInputs, "input source '%s' contains no rows", name)
		}
		if rowCount >= 0 && len(rows) != rowCount {
			return nil, flowerr.New(flowerr.TargetInputs,
				"input sources disagree on row count: '%s' has %d rows, previous sources have %d", name, len(rows), rowCount)
		}
		rowCount = len(rows)
		sources[name] = rows
		logger.Debug("loaded input source", "source", name, "rows", len(rows))
	}

	if p.maxLines > 0 && rowCount > p.maxLines {
		logger.Info("truncating batch to configured line limit", "rows", rowCount, "max_lines", p.maxLines)
		rowCount = p.maxLines
	}

	lines := make([]map[string]any, rowCount)
	for i := 0; i < rowCount; i++ {
		line, err := p.mapLine(sources, mapping, i)
		if err != nil {
			return nil, err
		}
		lines[i] = line
	}
	return lines, nil
}

// mapLine constructs one line's inputs. With no mapping configured, every
// source column passes through under its own name, sources merged in name
// order. Otherwise each mapping entry is either a "${source.column}"
// reference or a literal value.
func (p *Processor) mapLine(sources map[string][]map[string]any, mapping map[string]string, index int) (map[string]any, error) {
	line := map[string]any{}
	if len(mapping) == 0 {
		for _, name := range sortedKeys(sources) {
			for col, val := range sources[name][index] {
				line[col] = val
			}
		}
		return line, nil
	}

	for _, inputName := range sortedKeys(mapping) {
		spec := mapping[inputName]
		ref := columnRefPattern.FindStringSubmatch(spec)
		if ref == nil {
			line[inputName] = spec
			continue
		}
		sourceName, column := ref[1], ref[2]
		rows, ok := sources[sourceName]
		if !ok {
			return nil, flowerr.New(flowerr.TargetInputs,
				"inputs mapping for '%s' references unknown source '%s'", inputName, sourceName)
		}
		val, ok := rows[index][column]
		if !ok {
			return nil, flowerr.New(flowerr.TargetInputs,
				"line %d of source '%s' has no column '%s' (mapped to input '%s')", index, sourceName, column, inputName)
		}
		line[inputName] = val
	}
	return line, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
