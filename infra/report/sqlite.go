package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	corereport "github.com/kilianp07/fleetsim/core/report"
)

// SQLiteHandler persists reports to a SQLite database.
type SQLiteHandler struct {
	db *sql.DB
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    sim_time INTEGER NOT NULL,
    report_type TEXT NOT NULL,
    record TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS reports_run_time ON reports (run_id, sim_time);`

// NewSQLiteHandler opens or creates the database at path and ensures schema.
func NewSQLiteHandler(path string) (*SQLiteHandler, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Runs share the handler; one connection serializes their transactions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteHandler{db: db}, nil
}

// Handle writes the batch in one transaction.
func (h *SQLiteHandler) Handle(ctx context.Context, b corereport.Batch) error {
	if len(b.Reports) == 0 {
		return nil
	}
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO reports (run_id, sim_time, report_type, record) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, rec := range records(b) {
		data, err := json.Marshal(rec)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, rec.RunID, int64(rec.SimTime), string(rec.Type), string(data)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Query returns records matching q in insertion order.
func (h *SQLiteHandler) Query(ctx context.Context, q Query) ([]Record, error) {
	var args []any
	query := `SELECT record FROM reports WHERE 1=1`
	if q.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, q.RunID)
	}
	if q.From != 0 {
		query += ` AND sim_time >= ?`
		args = append(args, int64(q.From))
	}
	if q.To != 0 {
		query += ` AND sim_time <= ?`
		args = append(args, int64(q.To))
	}
	if len(q.Types) > 0 {
		query += ` AND report_type IN (?` + strings.Repeat(`, ?`, len(q.Types)-1) + `)`
		for _, t := range q.Types {
			args = append(args, string(t))
		}
	}
	query += ` ORDER BY id`
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// Counts returns the number of stored reports per type for a run.
func (h *SQLiteHandler) Counts(ctx context.Context, runID string) (map[corereport.Type]int, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT report_type, COUNT(*) FROM reports WHERE run_id = ? GROUP BY report_type`, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[corereport.Type]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		out[corereport.Type(t)] = n
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (h *SQLiteHandler) Close() error { return h.db.Close() }
