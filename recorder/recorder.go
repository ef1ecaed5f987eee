// Package recorder persists the start/update/complete record stream for
// update flows and ships completed flows to the telemetry transport. Open
// flows live in SQLite so that attempts interrupted by a crash can be
// discovered and closed out on the next launch.
package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"meridian/updater/updateflow"
)

const sendTimeout = 10 * time.Second

// PixelSender ships one flat parameter map per completed flow.
type PixelSender interface {
	SendPixel(ctx context.Context, params map[string]string) error
}

// Logger is the subset of the logger package the recorder needs.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// SQLiteRecorder implements updateflow.Recorder on a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	sender PixelSender
	log    Logger
}

// NewSQLiteRecorder opens (or creates) the flow database at dbPath. An empty
// path uses an in-memory database. The sender may be nil, in which case
// completed flows are only removed from the store.
func NewSQLiteRecorder(dbPath string, sender PixelSender, log Logger) (*SQLiteRecorder, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open flow database: %w", err)
	}

	// SQLite serializes writes internally; a single connection avoids
	// table-lock retries for this low-volume store.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS update_flows (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create update_flows schema: %w", err)
	}

	return &SQLiteRecorder{db: db, sender: sender, log: log}, nil
}

// Start records a newly started flow as open.
func (r *SQLiteRecorder) Start(flow updateflow.FlowState) error {
	state, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to encode flow: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.Exec(
		"INSERT OR REPLACE INTO update_flows (id, state, started_at, updated_at) VALUES (?, ?, ?, ?)",
		flow.ID, string(state), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to store flow start: %w", err)
	}
	return nil
}

// Update replaces the stored snapshot of an open flow.
func (r *SQLiteRecorder) Update(flow updateflow.FlowState) error {
	state, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to encode flow: %w", err)
	}

	result, err := r.db.Exec(
		"UPDATE update_flows SET state = ?, updated_at = ? WHERE id = ?",
		string(state), time.Now().UTC(), flow.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to store flow update: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		// An update for a flow we never saw started; store it rather than
		// losing the record.
		return r.Start(flow)
	}
	return nil
}

// Complete ships the terminal flow to the telemetry transport and removes it
// from the open-flow store. Transport failures are logged and swallowed;
// telemetry is best effort and must never leave a flow stuck open.
func (r *SQLiteRecorder) Complete(flow updateflow.FlowState, status updateflow.CompletionStatus) error {
	if r.sender != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := r.sender.SendPixel(ctx, updateflow.Parameters(flow)); err != nil {
			r.logWarn("Failed to send update flow pixel",
				"id", flow.ID, "outcome", status.Outcome, "error", err)
		}
	}

	if _, err := r.db.Exec("DELETE FROM update_flows WHERE id = ?", flow.ID); err != nil {
		return fmt.Errorf("failed to remove completed flow: %w", err)
	}
	return nil
}

// OpenFlows returns every flow recorded as started but not yet completed,
// oldest first.
func (r *SQLiteRecorder) OpenFlows() ([]updateflow.FlowState, error) {
	rows, err := r.db.Query("SELECT state FROM update_flows ORDER BY started_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query open flows: %w", err)
	}
	defer rows.Close()

	var flows []updateflow.FlowState
	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("failed to scan flow row: %w", err)
		}
		var flow updateflow.FlowState
		if err := json.Unmarshal([]byte(state), &flow); err != nil {
			r.logWarn("Dropping undecodable flow row", "error", err)
			continue
		}
		flows = append(flows, flow)
	}
	return flows, rows.Err()
}

// Close closes the database connection.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

func (r *SQLiteRecorder) logWarn(msg string, context ...interface{}) {
	if r.log != nil {
		r.log.Warn(msg, context...)
	}
}
