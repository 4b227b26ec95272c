package runstorage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vk/flowbatch/internal/model"
)

// SQLite is a Store backed by a local SQLite database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if necessary) the diagnostics database at the
// given path and ensures the schema exists.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run storage at %s: %w", path, err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			flow_name TEXT,
			total_lines INTEGER,
			status TEXT,
			message TEXT,
			started_at DATETIME,
			finished_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS line_results (
			run_id TEXT,
			line_index INTEGER,
			status TEXT,
			output TEXT,
			error_message TEXT,
			started_at DATETIME,
			finished_at DATETIME,
			PRIMARY KEY (run_id, line_index)
		);`,
		`CREATE TABLE IF NOT EXISTS aggregations (
			run_id TEXT PRIMARY KEY,
			output TEXT,
			metrics TEXT,
			errors TEXT,
			created_at DATETIME
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize run storage schema: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

// StartRun implements Store.
func (s *SQLite) StartRun(ctx context.Context, runID, flowName string, total int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, flow_name, total_lines, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		runID, flowName, total, string(model.StatusRunning), time.Now().UTC())
	return err
}

// SaveLineResult implements Store.
func (s *SQLite) SaveLineResult(ctx context.Context, runID string, r *model.LineResult) error {
	output, err := json.Marshal(r.Output)
	if err != nil {
		return fmt.Errorf("failed to encode line %d output: %w", r.Index, err)
	}
	errMsg := ""
	if r.Error != nil {
		errMsg = r.Error.Message
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO line_results (run_id, line_index, status, output, error_message, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, r.Index, string(r.Status), string(output), errMsg, r.StartTime, r.EndTime)
	return err
}

// SaveAggregation implements Store.
func (s *SQLite) SaveAggregation(ctx context.Context, runID string, a *model.AggregationResult) error {
	output, err := json.Marshal(a.Output)
	if err != nil {
		return fmt.Errorf("failed to encode aggregation output: %w", err)
	}
	metrics, err := json.Marshal(a.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode aggregation metrics: %w", err)
	}
	nodeErrors, err := json.Marshal(a.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode aggregation errors: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO aggregations (run_id, output, metrics, errors, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, string(output), string(metrics), string(nodeErrors), time.Now().UTC())
	return err
}

// FinishRun implements Store.
func (s *SQLite) FinishRun(ctx context.Context, runID string, status model.Status, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, message = ?, finished_at = ? WHERE id = ?`,
		string(status), message, time.Now().UTC(), runID)
	return err
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}
