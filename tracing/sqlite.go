package tracing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS spans (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id    TEXT NOT NULL,
	name        TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	ended_at    TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT,
	attributes  TEXT
);

CREATE INDEX IF NOT EXISTS idx_spans_trace ON spans(trace_id);
`

// SQLiteTracer stores spans in a local SQLite database.
type SQLiteTracer struct {
	db *sql.DB
}

// NewSQLiteTracer opens dbPath (":memory:" for tests) and runs migrations.
func NewSQLiteTracer(dbPath string) (*SQLiteTracer, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteTracer{db: db}, nil
}

func (t *SQLiteTracer) Close() error {
	return t.db.Close()
}

func (t *SQLiteTracer) Record(ctx context.Context, span *Span) error {
	attrs, err := json.Marshal(span.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	_, err = t.db.ExecContext(ctx,
		`INSERT INTO spans (trace_id, name, started_at, ended_at, duration_ms, status, error, attributes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		span.TraceID,
		span.Name,
		span.Start.Format(time.RFC3339Nano),
		span.End.Format(time.RFC3339Nano),
		span.Duration().Milliseconds(),
		span.Status,
		nullIfEmpty(span.Error),
		string(attrs),
	)
	if err != nil {
		return fmt.Errorf("record span: %w", err)
	}
	return nil
}

// Spans returns the recorded spans of a trace in insertion order.
func (t *SQLiteTracer) Spans(ctx context.Context, traceID string) ([]Span, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT name, started_at, ended_at, status, error, attributes FROM spans WHERE trace_id = ? ORDER BY id`,
		traceID)
	if err != nil {
		return nil, fmt.Errorf("query spans: %w", err)
	}
	defer rows.Close()

	var spans []Span
	for rows.Next() {
		var (
			span           = Span{TraceID: traceID}
			started, ended string
			errText, attrs sql.NullString
		)
		if err := rows.Scan(&span.Name, &started, &ended, &span.Status, &errText, &attrs); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		span.Start, _ = time.Parse(time.RFC3339Nano, started)
		span.End, _ = time.Parse(time.RFC3339Nano, ended)
		span.Error = errText.String
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &span.Attributes); err != nil {
				return nil, fmt.Errorf("decode attributes: %w", err)
			}
		}
		spans = append(spans, span)
	}
	return spans, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
