// Package eventlog records session lifecycle events in SQLite and reads them
// back for the logs and monitor commands.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dolphinenv/pkg/protocol"
)

// Filter specifies which events Query returns.
type Filter struct {
	// SessionID restricts to one session when non-nil.
	SessionID *int

	// Type restricts to one event type (e.g., "step", "kill").
	Type string

	// AfterID returns only events with a larger id (for follow mode).
	AfterID int64

	// Since returns events created at or after this time.
	Since *time.Time

	// Limit restricts the number of results (0 = no limit). With a limit,
	// the newest events are kept.
	Limit int
}

// Reader provides read-only access to the event log.
type Reader struct {
	db *sql.DB
}

// NewReader opens the event database read-only. The database must exist.
func NewReader(dbPath string) (*Reader, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}
	db, err := openDB(context.Background(), fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return nil, err
	}
	return &Reader{db: db}, nil
}

// Close releases the database connection. Safe to call multiple times.
func (r *Reader) Close() error {
	if r.db != nil {
		err := r.db.Close()
		r.db = nil
		return err
	}
	return nil
}

// Query returns matching events, oldest first.
func (r *Reader) Query(ctx context.Context, f Filter) ([]Event, error) {
	query, args := buildQuery(f)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e         Event
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.SessionID, &e.RunID, &e.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	// Newest-first from SQL so LIMIT keeps the tail; flip to chronological.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func buildQuery(f Filter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	query := "SELECT id, type, session_id, run_id, payload, created_at FROM events WHERE 1=1"

	if f.SessionID != nil {
		conditions = append(conditions, "session_id = ?")
		args = append(args, *f.SessionID)
	}
	if f.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, f.Type)
	}
	if f.AfterID > 0 {
		conditions = append(conditions, "id > ?")
		args = append(args, f.AfterID)
	}
	if f.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(timeLayout))
	}
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return query, args
}

// Summary is the latest state of one session.
type Summary struct {
	SessionID int
	RunID     string
	LastType  string
	LastAt    time.Time
	Events    int
	Steps     int // step events recorded
}

// Summaries returns one row per session, ordered by session id.
func (r *Reader) Summaries(ctx context.Context) ([]Summary, error) {
	const query = `
SELECT e.session_id, e.run_id, e.type, e.created_at, c.n, c.steps
FROM events e
JOIN (
    SELECT session_id, MAX(id) AS max_id, COUNT(*) AS n,
           SUM(CASE WHEN type = 'step' THEN 1 ELSE 0 END) AS steps
    FROM events GROUP BY session_id
) c ON e.id = c.max_id
ORDER BY e.session_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			s  Summary
			at string
		)
		if err := rows.Scan(&s.SessionID, &s.RunID, &s.LastType, &at, &s.Events, &s.Steps); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if s.LastAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return out, nil
}

// DefaultDBPath returns the default path to the event database.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, protocol.HomeDir, "events.db")
}
