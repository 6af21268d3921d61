package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dolphinenv/pkg/config"
	"dolphinenv/pkg/script"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearEnv isolates a test from the caller's overrides.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvHome, "")
	t.Setenv(config.EnvPipePath, "")
	t.Setenv(config.EnvEventDB, "")
	t.Setenv("HOME", "/home/tester")
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "dolphin_config.yaml", `
DOLPHIN_PATH: /opt/dolphin
DOLPHIN_IDS: [2, 5]
ISO_PATH: /games/game.iso
PIPE_PATH: /tmp/pipes
SCRIPT_PATH: /scripts/loop.py
REQUEST_TIMEOUT: 1m30s
END_POLICY: exit
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DolphinPath != "/opt/dolphin" || cfg.ISOPath != "/games/game.iso" || cfg.ScriptPath != "/scripts/loop.py" {
		t.Errorf("paths = %+v", cfg)
	}
	if len(cfg.DolphinIDs) != 2 || cfg.FirstID() != 2 {
		t.Errorf("DolphinIDs = %v", cfg.DolphinIDs)
	}
	if cfg.PipePath != "/tmp/pipes" {
		t.Errorf("PipePath = %q", cfg.PipePath)
	}
	if cfg.RequestTimeout.Std() != 90*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout.Std())
	}
	if p, err := cfg.Policy(); err != nil || p != script.Exit {
		t.Errorf("Policy = %v, %v", p, err)
	}
	if got := cfg.EmulatorCommand(); len(got) != 1 || got[0] != "/opt/dolphin/dolphin-emu" {
		t.Errorf("EmulatorCommand = %v", got)
	}
	// Unset keys fall back under the default home.
	if cfg.Home != "/home/tester/.dolphinenv" || cfg.EventDB != "/home/tester/.dolphinenv/events.db" {
		t.Errorf("Home = %q, EventDB = %q", cfg.Home, cfg.EventDB)
	}
}

func TestLoad_YAMLSecondsTimeout(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeConfig(t, "c.yml", "REQUEST_TIMEOUT: 5\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RequestTimeout.Std() != 5*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout.Std())
	}
}

func TestLoad_TOML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "dolphin.toml", `
DOLPHIN_PATH = "/opt/dolphin"
DOLPHIN_IDS = [3]
REQUEST_TIMEOUT = "10s"
HOME = "/var/lib/dolphinenv"
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FirstID() != 3 || cfg.RequestTimeout.Std() != 10*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.PipePath != "/var/lib/dolphinenv/pipes" {
		t.Errorf("PipePath = %q", cfg.PipePath)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeConfig(t, "empty.yaml", "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DolphinPath != config.DefaultDolphinPath {
		t.Errorf("DolphinPath = %q", cfg.DolphinPath)
	}
	if len(cfg.DolphinIDs) != 1 || cfg.DolphinIDs[0] != 0 {
		t.Errorf("DolphinIDs = %v", cfg.DolphinIDs)
	}
	if cfg.RequestTimeout.Std() != config.DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout.Std())
	}
	if p, _ := cfg.Policy(); p != script.Drain {
		t.Errorf("Policy = %v", p)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvHome, "/env/home")
	t.Setenv(config.EnvPipePath, "/env/pipes")
	path := writeConfig(t, "c.yaml", "PIPE_PATH: /file/pipes\nEVENT_DB: /file/events.db\nHOME: /file/home\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Home != "/env/home" {
		t.Errorf("Home = %q", cfg.Home)
	}
	if cfg.PipePath != "/env/pipes" {
		t.Errorf("PipePath = %q", cfg.PipePath)
	}
	if cfg.EventDB != "/file/events.db" {
		t.Errorf("EventDB = %q", cfg.EventDB)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"empty ids", "c.yaml", "DOLPHIN_IDS: []\n", "DOLPHIN_IDS is empty"},
		{"duplicate ids", "c.yaml", "DOLPHIN_IDS: [1, 1]\n", "duplicate id 1"},
		{"negative id", "c.yaml", "DOLPHIN_IDS: [-1]\n", "negative id"},
		{"unknown policy", "c.yaml", "END_POLICY: linger\n", "END_POLICY"},
		{"bad timeout", "c.yaml", "REQUEST_TIMEOUT: soon\n", "parse duration"},
		{"bad yaml", "c.yaml", "DOLPHIN_IDS: [\n", "parse"},
		{"bad toml", "c.toml", "DOLPHIN_IDS = \n", "parse"},
		{"unknown extension", "c.json", "{}", "unsupported config format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.file, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOrDefault_NoFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := config.LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.PipePath != "/home/tester/.dolphinenv/pipes" {
		t.Errorf("PipePath = %q", cfg.PipePath)
	}
}

func TestLoadOrDefault_FindsWorkingDirFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, config.DefaultFile), []byte("DOLPHIN_IDS: [7]\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.FirstID() != 7 {
		t.Errorf("FirstID = %d", cfg.FirstID())
	}
}

func TestResolvePaths_NilConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvEventDB, "/env/events.db")

	p, err := config.ResolvePaths(nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Home != "/home/tester/.dolphinenv" || p.PipeRoot != "/home/tester/.dolphinenv/pipes" || p.EventDB != "/env/events.db" {
		t.Errorf("paths = %+v", p)
	}
}
