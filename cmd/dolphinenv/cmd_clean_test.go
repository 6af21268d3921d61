package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dolphinenv/pkg/channel"
)

func TestCleanSessions(t *testing.T) {
	root := t.TempDir()
	for _, id := range []int{0, 3} {
		if _, _, err := channel.Provision(root, id, false); err != nil {
			t.Fatalf("Provision(%d): %v", id, err)
		}
	}
	// A stray file in session 3 keeps its directory.
	if err := os.WriteFile(filepath.Join(channel.SessionDir(root, 3), "notes"), nil, 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := cleanSessions(&out, root, []int{0, 3, 9}); err != nil {
		t.Fatalf("cleanSessions: %v", err)
	}

	if _, err := os.Stat(channel.SessionDir(root, 0)); !os.IsNotExist(err) {
		t.Errorf("session 0 dir still present: %v", err)
	}
	if channel.Open(root, 3).Exists() {
		t.Error("session 3 pipes still present")
	}
	if _, err := os.Stat(channel.SessionDir(root, 3)); err != nil {
		t.Errorf("session 3 dir removed despite stray file: %v", err)
	}

	got := out.String()
	for _, want := range []string{"session 0: removed", "session 3: removed", "session 9: nothing to clean"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestCleanCommand(t *testing.T) {
	cfg := isolate(t)
	if _, _, err := channel.Provision(cfg.PipePath, 2, false); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "clean", "2")
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if !strings.Contains(out, "session 2: removed") {
		t.Errorf("output = %q", out)
	}

	if _, err := execute(t, "clean"); err == nil {
		t.Error("expected error without ids")
	}
	if _, err := execute(t, "clean", "-1"); err == nil {
		t.Error("expected error for negative id")
	}
}
