package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Writer appends events to the log. Safe for concurrent use.
type Writer struct {
	db   *sql.DB
	once sync.Once
	now  func() time.Time
}

// Create opens (creating if needed) the database at path and applies the
// schema.
func Create(ctx context.Context, path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}
	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	// Pragmas are per connection; one connection keeps them on every write.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event schema: %w", err)
	}
	return &Writer{db: db, now: time.Now}, nil
}

// Record inserts e. ID and CreatedAt are assigned by the log.
func (w *Writer) Record(ctx context.Context, e Event) error {
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO events (type, session_id, run_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.Type, e.SessionID, e.RunID, e.Payload, w.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record %s event: %w", e.Type, err)
	}
	return nil
}

// Close releases the database. Safe to call multiple times.
func (w *Writer) Close() error {
	var err error
	w.once.Do(func() { err = w.db.Close() })
	return err
}

// StepPayload is the payload of a step event.
type StepPayload struct {
	Steps  uint64 `json:"steps"`
	Digest string `json:"digest"`
}

// EncodePayload renders v as the JSON payload column.
func EncodePayload(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
