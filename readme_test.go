package main

import (
	"os"
	"strings"
	"testing"
)

func TestREADMEDocumentsCommandsAndConfig(t *testing.T) {
	content, err := os.ReadFile("README.md")
	if err != nil {
		t.Fatalf("Failed to read README.md: %v", err)
	}
	readmeText := string(content)

	for _, section := range []string{"## Commands", "## Configuration", "## Launch contract"} {
		if !strings.Contains(readmeText, section) {
			t.Errorf("README.md missing %s section", section)
		}
	}

	for _, sub := range []string{"run", "emulate", "logs", "monitor", "clean", "version"} {
		if !strings.Contains(readmeText, "dolphinenv "+sub) {
			t.Errorf("README.md missing command %q", sub)
		}
	}

	keys := []string{
		"DOLPHIN_PATH", "DOLPHIN_IDS", "ISO_PATH", "PIPE_PATH", "SCRIPT_PATH",
		"REQUEST_TIMEOUT", "EVENT_DB", "END_POLICY", "HOME",
		"DOLPHINENV_HOME", "DOLPHINENV_PIPE_PATH", "DOLPHINENV_EVENT_DB",
	}
	for _, key := range keys {
		if !strings.Contains(readmeText, key) {
			t.Errorf("README.md missing config key %s", key)
		}
	}
}
