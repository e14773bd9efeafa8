// Package ledger keeps a local SQLite record of completed runs.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/flood-inundation/internal/domain"
)

// Ledger implements pipeline.SummarySink on top of SQLite.
type Ledger struct {
	db *sql.DB
}

// New opens (or creates) the ledger database at path.
func New(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// A single connection keeps in-memory databases shared between calls.
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		output_path TEXT NOT NULL,
		output_sha256 TEXT NOT NULL,
		inundated_cells INTEGER NOT NULL,
		max_depth REAL NOT NULL,
		completed_at DATETIME NOT NULL,
		data JSON NOT NULL,
		PRIMARY KEY (id, completed_at)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_completed ON runs(completed_at);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Name identifies the sink in logs.
func (l *Ledger) Name() string { return "ledger" }

// Publish records a completed run.
func (l *Ledger) Publish(ctx context.Context, s domain.RunSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("serialize run summary: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, quantity, output_path, output_sha256, inundated_cells, max_depth, completed_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Quantity, s.OutputPath, s.OutputSHA256, s.InundatedCells, s.MaxDepth,
		s.CompletedAt.UTC().Format(time.RFC3339Nano), data)
	if err != nil {
		return fmt.Errorf("record run %s: %w", s.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT data FROM runs
		ORDER BY completed_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunSummary
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var s domain.RunSummary
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Lookup returns the latest run with the given ID.
func (l *Ledger) Lookup(ctx context.Context, id string) (domain.RunSummary, bool, error) {
	var data []byte
	err := l.db.QueryRowContext(ctx, `
		SELECT data FROM runs WHERE id = ?
		ORDER BY completed_at DESC LIMIT 1`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return domain.RunSummary{}, false, nil
	}
	if err != nil {
		return domain.RunSummary{}, false, fmt.Errorf("lookup run %s: %w", id, err)
	}
	var s domain.RunSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.RunSummary{}, false, fmt.Errorf("decode run: %w", err)
	}
	return s, true, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
