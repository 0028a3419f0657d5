// Package history archives conversation turns to SQLite so exchanges
// outlive the bounded context window.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one archived turn.
type Entry struct {
	ID      int64
	Date    time.Time
	Channel string
	Role    string
	Content string
}

// Archive is the durable transcript store.
type Archive struct {
	logger *slog.Logger
	db     *sql.DB
}

// Open creates or opens the archive database at path.
func Open(logger *slog.Logger, path string) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &Archive{
		logger: logger.With("component", "history"),
		db:     db,
	}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return a, nil
}

func (a *Archive) migrate() error {
	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcript (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			channel TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_transcript_date ON transcript(date DESC);
	`)
	return err
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Record appends one turn to the transcript.
func (a *Archive) Record(ctx context.Context, channel, role, content string) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO transcript (date, channel, role, content)
		VALUES (?, ?, ?, ?)
	`, time.Now().UTC().Format(time.RFC3339), channel, role, content)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// Search returns the most recent turns containing the phrase.
func (a *Archive) Search(ctx context.Context, phrase string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, date, channel, role, content
		FROM transcript
		WHERE content LIKE ? COLLATE NOCASE
		ORDER BY id DESC
		LIMIT ?
	`, "%"+phrase+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search transcript: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Recent returns the latest turns, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, date, channel, role, content
		FROM transcript
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var date string
		if err := rows.Scan(&e.ID, &date, &e.Channel, &e.Role, &e.Content); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339, date)
		if err == nil {
			e.Date = parsed
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
