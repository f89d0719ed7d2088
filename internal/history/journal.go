// Package history keeps a DuckDB journal of session operation outcomes.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/genstats/client/internal/models"
	"github.com/marcboeker/go-duckdb"
)

// DefaultFileName is the journal file created inside the data directory.
const DefaultFileName = "history.duckdb"

// Journal appends operation outcomes to a DuckDB file. It is safe for
// concurrent use.
type Journal struct {
	db     *sql.DB
	dbPath string
	log    *slog.Logger
}

// OperationCount aggregates outcomes of one operation.
type OperationCount struct {
	Operation models.Operation `json:"operation"`
	Success   int              `json:"success"`
	Failure   int              `json:"failure"`
	AvgTime   time.Duration    `json:"avgTime"`
}

// Open opens or creates the journal at dbPath. An empty path keeps the
// journal in memory.
func Open(dbPath string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "history")

	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=1",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	schema := []string{
		`CREATE SEQUENCE IF NOT EXISTS history_id_seq START 1`,
		`CREATE TABLE IF NOT EXISTS history (
			id          BIGINT PRIMARY KEY DEFAULT nextval('history_id_seq'),
			at          TIMESTAMP NOT NULL,
			operation   VARCHAR NOT NULL,
			outcome     VARCHAR NOT NULL,
			handle      VARCHAR,
			detail      VARCHAR,
			duration_ns BIGINT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	log.Debug("journal opened", "path", dbPath)
	return &Journal{db: db, dbPath: dbPath, log: log}, nil
}

// Path returns the journal file path; empty for an in-memory journal.
func (j *Journal) Path() string { return j.dbPath }

// Record appends e. A zero At is stamped with the current time.
func (j *Journal) Record(ctx context.Context, e models.HistoryEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO history (at, operation, outcome, handle, detail, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.At.UTC(), string(e.Operation), string(e.Outcome),
		nullString(e.Handle.String()), nullString(e.Detail), e.Duration.Nanoseconds())
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, at, operation, outcome, handle, detail, duration_ns
		 FROM history ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e              models.HistoryEntry
			op, outcome    string
			handle, detail sql.NullString
			durationNs     int64
		)
		if err := rows.Scan(&e.ID, &e.At, &op, &outcome, &handle, &detail, &durationNs); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		e.Operation = models.Operation(op)
		e.Outcome = models.Outcome(outcome)
		e.Handle = models.DatasetHandle(handle.String)
		e.Detail = detail.String
		e.Duration = time.Duration(durationNs)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByOperation returns per-operation outcome counts ordered by operation.
func (j *Journal) CountByOperation(ctx context.Context) ([]OperationCount, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT operation,
		       COUNT(*) FILTER (WHERE outcome = 'success'),
		       COUNT(*) FILTER (WHERE outcome = 'failure'),
		       CAST(AVG(duration_ns) AS BIGINT)
		FROM history
		GROUP BY operation
		ORDER BY operation`)
	if err != nil {
		return nil, fmt.Errorf("counting history: %w", err)
	}
	defer rows.Close()

	var counts []OperationCount
	for rows.Next() {
		var (
			c     OperationCount
			op    string
			avgNs int64
		)
		if err := rows.Scan(&op, &c.Success, &c.Failure, &avgNs); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		c.Operation = models.Operation(op)
		c.AvgTime = time.Duration(avgNs)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Clear removes every entry.
func (j *Journal) Clear(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// Close closes the database. The file is kept.
func (j *Journal) Close() error {
	if j.db == nil {
		return errors.New("journal already closed")
	}
	err := j.db.Close()
	j.db = nil
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
