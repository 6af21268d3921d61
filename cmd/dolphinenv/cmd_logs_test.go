package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dolphinenv/pkg/config"
	"dolphinenv/pkg/eventlog"
)

func seedEvents(t *testing.T, cfg *config.Config, events ...eventlog.Event) *eventlog.Writer {
	t.Helper()
	w, err := eventlog.Create(context.Background(), cfg.EventDB)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	for _, e := range events {
		if err := w.Record(context.Background(), e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	return w
}

func TestLogsCommand(t *testing.T) {
	cfg := isolate(t)
	seedEvents(t, cfg,
		eventlog.Event{Type: eventlog.TypeConnect, SessionID: 0, RunID: "0123456789abcdef"},
		eventlog.Event{Type: eventlog.TypeConnect, SessionID: 1, RunID: "run-b"},
		eventlog.Event{Type: eventlog.TypeKill, SessionID: 0, RunID: "0123456789abcdef", Payload: `{"pid":42}`},
	)

	t.Run("all", func(t *testing.T) {
		out, err := execute(t, "logs")
		if err != nil {
			t.Fatalf("logs: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 3 {
			t.Fatalf("got %d lines:\n%s", len(lines), out)
		}
		if !strings.Contains(lines[2], "kill") || !strings.Contains(lines[2], `{"pid":42}`) || !strings.Contains(lines[2], "01234567 ") {
			t.Errorf("last line = %q", lines[2])
		}
		if strings.Contains(out, "\x1b[") {
			t.Error("colour codes written to a non-terminal")
		}
	})

	t.Run("by session", func(t *testing.T) {
		out, err := execute(t, "logs", "1")
		if err != nil {
			t.Fatalf("logs: %v", err)
		}
		if strings.Count(out, "\n") != 1 || !strings.Contains(out, "session 1") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("tail and type", func(t *testing.T) {
		out, err := execute(t, "logs", "--tail", "1", "--type", "connect")
		if err != nil {
			t.Fatalf("logs: %v", err)
		}
		if strings.Count(out, "\n") != 1 || !strings.Contains(out, "session 1") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("no matches", func(t *testing.T) {
		out, err := execute(t, "logs", "7")
		if err != nil {
			t.Fatalf("logs: %v", err)
		}
		if !strings.Contains(out, "no events found") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("bad id", func(t *testing.T) {
		if _, err := execute(t, "logs", "abc"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestLogsCommand_MissingDatabase(t *testing.T) {
	isolate(t)
	t.Setenv(config.EnvEventDB, filepath.Join(t.TempDir(), "absent.db"))
	if _, err := execute(t, "logs"); err == nil {
		t.Fatal("expected error for missing database")
	}
}

func TestFollowLogs_PrintsNewEvents(t *testing.T) {
	cfg := isolate(t)
	w := seedEvents(t, cfg, eventlog.Event{Type: eventlog.TypeConnect, SessionID: 0, RunID: "r"})

	r, err := eventlog.NewReader(cfg.EventDB)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = w.Record(context.Background(), eventlog.Event{Type: eventlog.TypeTimeout, SessionID: 0, RunID: "r"})
	}()

	var out bytes.Buffer
	if err := followLogs(ctx, r, &out, eventStyles{}, eventlog.Filter{Limit: 10}, 50*time.Millisecond); err != nil {
		t.Fatalf("followLogs: %v", err)
	}
	got := out.String()
	if strings.Count(got, "\n") != 2 || !strings.Contains(got, "connect") || !strings.Contains(got, "timeout") {
		t.Errorf("output = %q", got)
	}
}

func TestEventStyles(t *testing.T) {
	plain := newEventStyles(false)
	if got := plain.render(eventlog.TypeKill, "kill"); got != "kill" {
		t.Errorf("plain render = %q", got)
	}
	colored := newEventStyles(true)
	if got := colored.render("unknown", "x"); got != "x" {
		t.Errorf("unknown type render = %q", got)
	}
	if !strings.Contains(colored.render(eventlog.TypeKill, "kill"), "kill") {
		t.Error("coloured render lost its text")
	}
}

func TestShortRun(t *testing.T) {
	if got := shortRun("0123456789"); got != "01234567" {
		t.Errorf("shortRun = %q", got)
	}
	if got := shortRun("abc"); got != "abc" {
		t.Errorf("shortRun = %q", got)
	}
}
