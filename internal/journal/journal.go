// Package journal records every reasoning call in a SQLite database so an
// operator can inspect prompts and responses after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// MaxStoredText is how much of a prompt or response is kept per entry
const MaxStoredText = 2000

const schema = `
CREATE TABLE IF NOT EXISTS reasoning_calls (
	id              TEXT PRIMARY KEY,
	recorded_at     TEXT NOT NULL,
	operation       TEXT NOT NULL,
	provider        TEXT NOT NULL DEFAULT '',
	model           TEXT NOT NULL DEFAULT '',
	schema_hint     TEXT NOT NULL DEFAULT '',
	prompt_length   INTEGER NOT NULL DEFAULT 0,
	response_length INTEGER NOT NULL DEFAULT 0,
	prompt          TEXT NOT NULL DEFAULT '',
	response        TEXT NOT NULL DEFAULT '',
	input_tokens    INTEGER NOT NULL DEFAULT 0,
	output_tokens   INTEGER NOT NULL DEFAULT 0,
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_reasoning_calls_recorded_at ON reasoning_calls(recorded_at);
`

// Entry is one journaled reasoning call
type Entry struct {
	ID             string
	RecordedAt     time.Time
	Operation      string
	Provider       string
	Model          string
	Schema         string
	PromptLength   int
	ResponseLength int
	Prompt         string
	Response       string
	InputTokens    int64
	OutputTokens   int64
	Duration       time.Duration
	Error          string
}

// Journal is a SQLite-backed call log
type Journal struct {
	db   *sql.DB
	path string
}

// Open creates or opens the journal database at path
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	return &Journal{db: db, path: path}, nil
}

// Path returns the database file location
func (j *Journal) Path() string {
	return j.path
}

// Record stores an entry, filling in the id and timestamp when missing and
// truncating prompt and response to MaxStoredText.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	if e.PromptLength == 0 {
		e.PromptLength = len(e.Prompt)
	}
	if e.ResponseLength == 0 {
		e.ResponseLength = len(e.Response)
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO reasoning_calls (
			id, recorded_at, operation, provider, model, schema_hint,
			prompt_length, response_length, prompt, response,
			input_tokens, output_tokens, duration_ms, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RecordedAt.UTC().Format(time.RFC3339Nano), e.Operation, e.Provider, e.Model, e.Schema,
		e.PromptLength, e.ResponseLength, clip(e.Prompt), clip(e.Response),
		e.InputTokens, e.OutputTokens, e.Duration.Milliseconds(), e.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record reasoning call: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, recorded_at, operation, provider, model, schema_hint,
		       prompt_length, response_length, prompt, response,
		       input_tokens, output_tokens, duration_ms, error
		FROM reasoning_calls
		ORDER BY recorded_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			recordedAt string
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &recordedAt, &e.Operation, &e.Provider, &e.Model, &e.Schema,
			&e.PromptLength, &e.ResponseLength, &e.Prompt, &e.Response,
			&e.InputTokens, &e.OutputTokens, &durationMS, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q in journal: %w", recordedAt, err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}

// Count returns the number of journaled calls
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reasoning_calls").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return n, nil
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}

func clip(s string) string {
	if len(s) <= MaxStoredText {
		return s
	}
	return s[:MaxStoredText] + "..."
}
