package inputs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadSource_CSV(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	path := writeFile(t, dir, "data.csv", "url,score\nhttps://a,1\nhttps://b,2\n")

	// --- Act ---
	rows, err := readSource(path)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// CSV values stay strings; declared input types coerce them later.
	require.Equal(t, map[string]any{"url": "https://a", "score": "1"}, rows[0])
	require.Equal(t, map[string]any{"url": "https://b", "score": "2"}, rows[1])
}

func TestReadSource_JSONArray(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "data.json", `[{"x": 1}, {"x": 2}]`)

	rows, err := readSource(path)

	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, float64(2), rows[1]["x"])
}

func TestReadSource_Directory(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Files contribute in name order; unsupported files are skipped.
	dir := t.TempDir()
	writeFile(t, dir, "b.jsonl", `{"x": 2}`+"\n")
	writeFile(t, dir, "a.jsonl", `{"x": 1}`+"\n")
	writeFile(t, dir, "notes.txt", "ignore me")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	// --- Act ---
	rows, err := readSource(dir)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, float64(1), rows[0]["x"])
	require.Equal(t, float64(2), rows[1]["x"])
}

func TestReadSource_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		file        string
		content     string
		errContains string
	}{
		{
			name:        "malformed jsonl line",
			file:        "bad.jsonl",
			content:     `{"x": 1}` + "\nnot json\n",
			errContains: "line 2",
		},
		{
			name:        "json not an array",
			file:        "bad.json",
			content:     `{"x": 1}`,
			errContains: "expected an array of objects",
		},
		{
			name:        "unsupported extension",
			file:        "data.parquet",
			content:     "binary",
			errContains: "unsupported input file format",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			path := writeFile(t, dir, tc.file, tc.content)

			_, err := readSource(path)

			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errContains)
		})
	}
}
