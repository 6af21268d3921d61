package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dolphinenv/pkg/protocol"
)

// Environment variables that override file settings.
const (
	EnvHome     = "DOLPHINENV_HOME"
	EnvPipePath = "DOLPHINENV_PIPE_PATH"
	EnvEventDB  = "DOLPHINENV_EVENT_DB"
)

// Paths holds the resolved state locations.
type Paths struct {
	Home     string // ~/.dolphinenv, HOME key or DOLPHINENV_HOME
	PipeRoot string // $Home/pipes, PIPE_PATH key or DOLPHINENV_PIPE_PATH
	EventDB  string // $Home/events.db, EVENT_DB key or DOLPHINENV_EVENT_DB
}

// ResolvePaths resolves state paths. Precedence per path: the specific env
// var, then the file setting, then a default under Home. cfg may be nil.
func ResolvePaths(cfg *Config) (*Paths, error) {
	var fileHome, filePipes, fileDB string
	if cfg != nil {
		fileHome, filePipes, fileDB = cfg.Home, cfg.PipePath, cfg.EventDB
	}

	home, err := resolveHome(fileHome)
	if err != nil {
		return nil, err
	}
	return &Paths{
		Home:     home,
		PipeRoot: resolvePathWithEnv(EnvPipePath, filePipes, home, "pipes"),
		EventDB:  resolvePathWithEnv(EnvEventDB, fileDB, home, "events.db"),
	}, nil
}

func resolveHome(fromFile string) (string, error) {
	if v := os.Getenv(EnvHome); v != "" {
		return v, nil
	}
	if fromFile != "" {
		return fromFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, protocol.HomeDir), nil
}

func resolvePathWithEnv(envKey, fromFile, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fromFile != "" {
		return fromFile
	}
	return filepath.Join(base, suffix)
}
