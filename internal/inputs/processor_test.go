package inputs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/flowbatch/internal/flowerr"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestProcess_SingleSourcePassthrough(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	writeFile(t, dir, "data.jsonl", `{"url": "https://a", "label": "x"}

{"url": "https://b", "label": "y"}
`)
	p := NewProcessor(dir, 0)

	// --- Act ---
	lines, err := p.Process(context.Background(), map[string]string{"data": "data.jsonl"}, nil)

	// --- Assert ---
	require.NoError(t, err)
	// The blank line is skipped; columns pass through unmapped.
	require.Len(t, lines, 2)
	require.Equal(t, map[string]any{"url": "https://a", "label": "x"}, lines[0])
	require.Equal(t, map[string]any{"url": "https://b", "label": "y"}, lines[1])
}

func TestProcess_ColumnMapping(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	writeFile(t, dir, "data.jsonl", `{"question": "q1", "expected": "a1"}
{"question": "q2", "expected": "a2"}
`)
	p := NewProcessor(dir, 0)
	mapping := map[string]string{
		"text":        "${data.question}",
		"groundtruth": "${data.expected}",
		"mode":        "strict",
	}

	// --- Act ---
	lines, err := p.Process(context.Background(), map[string]string{"data": "data.jsonl"}, mapping)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, "q1", lines[0]["text"])
	require.Equal(t, "a1", lines[0]["groundtruth"])
	// A value that is not a ${source.column} reference is a literal.
	require.Equal(t, "strict", lines[0]["mode"])
	require.Equal(t, "q2", lines[1]["text"])
}

func TestProcess_MultipleSources(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	writeFile(t, dir, "questions.jsonl", `{"q": "q1"}
{"q": "q2"}
`)
	writeFile(t, dir, "answers.jsonl", `{"a": "a1"}
{"a": "a2"}
`)
	p := NewProcessor(dir, 0)
	sources := map[string]string{
		"questions": "questions.jsonl",
		"answers":   "answers.jsonl",
	}
	mapping := map[string]string{
		"question": "${questions.q}",
		"answer":   "${answers.a}",
	}

	// --- Act ---
	lines, err := p.Process(context.Background(), sources, mapping)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, map[string]any{"question": "q2", "answer": "a2"}, lines[1])
}

func TestProcess_RowCountMismatch(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	writeFile(t, dir, "a.jsonl", `{"x": 1}
{"x": 2}
`)
	writeFile(t, dir, "b.jsonl", `{"y": 1}
`)
	p := NewProcessor(dir, 0)

	// --- Act ---
	_, err := p.Process(context.Background(), map[string]string{"a": "a.jsonl", "b": "b.jsonl"}, nil)

	// --- Assert ---
	require.Error(t, err)
	classified, ok := flowerr.As(err)
	require.True(t, ok)
	require.Equal(t, flowerr.TargetInputs, classified.Target)
	require.Contains(t, err.Error(), "disagree on row count")
}

func TestProcess_MaxLinesTruncation(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	writeFile(t, dir, "data.jsonl", `{"x": 1}
{"x": 2}
{"x": 3}
{"x": 4}
`)
	p := NewProcessor(dir, 2)

	// --- Act ---
	lines, err := p.Process(context.Background(), map[string]string{"data": "data.jsonl"}, nil)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, float64(1), lines[0]["x"])
	require.Equal(t, float64(2), lines[1]["x"])
}

func TestProcess_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		sources     func(dir string) map[string]string
		mapping     map[string]string
		errContains string
	}{
		{
			name:        "no sources",
			sources:     func(string) map[string]string { return nil },
			errContains: "no input sources",
		},
		{
			name: "missing file",
			sources: func(string) map[string]string {
				return map[string]string{"data": "nope.jsonl"}
			},
			errContains: "failed to read input source 'data'",
		},
		{
			name: "empty source",
			sources: func(dir string) map[string]string {
				writeFile(t, dir, "empty.jsonl", "")
				return map[string]string{"data": "empty.jsonl"}
			},
			errContains: "contains no rows",
		},
		{
			name: "unknown source in mapping",
			sources: func(dir string) map[string]string {
				writeFile(t, dir, "data.jsonl", `{"x": 1}`+"\n")
				return map[string]string{"data": "data.jsonl"}
			},
			mapping:     map[string]string{"text": "${ghost.x}"},
			errContains: "unknown source 'ghost'",
		},
		{
			name: "unknown column in mapping",
			sources: func(dir string) map[string]string {
				writeFile(t, dir, "data.jsonl", `{"x": 1}`+"\n")
				return map[string]string{"data": "data.jsonl"}
			},
			mapping:     map[string]string{"text": "${data.missing}"},
			errContains: "has no column 'missing'",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			p := NewProcessor(dir, 0)

			_, err := p.Process(context.Background(), tc.sources(dir), tc.mapping)

			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errContains)
			classified, ok := flowerr.As(err)
			require.True(t, ok, "input errors must be classified")
			require.Equal(t, flowerr.TargetInputs, classified.Target)
		})
	}
}
