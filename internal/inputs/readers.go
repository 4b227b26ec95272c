package inputs

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// readSource loads all rows from a source path. A directory contributes
// every supported file it contains, in name order; a single file contributes
// its own rows.
func readSource(path string) ([]map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return readFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	for _, entry := range entries {
		if entry.IsDir() || !supportedFile(entry.Name()) {
			continue
		}
		fileRows, err := readFile(filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, err
		}
		rows = append(rows, fileRows...)
	}
	return rows, nil
}

func supportedFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jsonl", ".json", ".csv":
		return true
	}
	return false
}

func readFile(path string) ([]map[string]any, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		return readJSONLines(path)
	case ".json":
		return readJSONArray(path)
	case ".csv":
		return readCSV(path)
	}
	return nil, fmt.Errorf("unsupported input file format: %s", path)
}

func readJSONLines(path string) ([]map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows []map[string]any
	scanner := bufio.NewScanner(file)
	// Generous line limit; output rows of upstream runs can be large.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal([]byte(text), &row); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNo, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

func readJSONArray(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%s: expected an array of objects: %w", path, err)
	}
	return rows, nil
}

// readCSV reads a header row plus data rows. Values stay strings; the flow's
// declared input types coerce them later.
func readCSV(path string) ([]map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	rows := make([]map[string]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
