package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SchemaDDL defines the event log schema.
const SchemaDDL = `
-- Session lifecycle events written by the driver
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    session_id INTEGER NOT NULL,
    run_id TEXT NOT NULL DEFAULT '',
    payload TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_events_session_id ON events(session_id, id);
`

// timeLayout is how created_at is stored (UTC, millisecond precision).
const timeLayout = "2006-01-02 15:04:05.000"

// Event types recorded by a session.
const (
	TypeConnect    = "connect"
	TypeStep       = "step"
	TypeDisconnect = "disconnect"
	TypeKill       = "kill"
	TypeReset      = "reset"
	TypeTimeout    = "timeout"
	TypeExit       = "exit" // emulator exited without being killed
)

// Event is one row of the event log.
type Event struct {
	ID        int64
	Type      string
	SessionID int
	RunID     string
	Payload   string
	CreatedAt time.Time
}

// openDB opens a SQLite database at path and enforces WAL journal mode and
// a 5-second busy timeout, so the monitor can read while a session writes.
func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", dsn, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", dsn, err)
	}
	return db, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse created_at %q", s)
}
