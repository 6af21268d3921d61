package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
)

// fsChangeMsg is sent when the event database (or its WAL) changes.
type fsChangeMsg struct{}

// debounceDuration coalesces the burst of writes one insert produces.
const debounceDuration = 100 * time.Millisecond

// initWatcher watches the directory holding dbPath. Returns nil when the
// directory is missing or the watcher cannot be created; the monitor then
// relies on its poll tick alone.
func initWatcher(dbPath string) *fsnotify.Watcher {
	dir := filepath.Dir(dbPath)
	if _, err := os.Stat(dir); err != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("fsnotify: failed to create watcher: %v (falling back to polling)", err)
		return nil
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		log.Printf("fsnotify: failed to watch %s: %v (falling back to polling)", dir, err)
		return nil
	}
	return watcher
}

// waitForChange returns a tea.Cmd that blocks until a debounced change to
// dbPath (or its -wal/-shm files) arrives. It must be re-issued after each
// fsChangeMsg.
func waitForChange(watcher *fsnotify.Watcher, dbPath string) tea.Cmd {
	if watcher == nil {
		return nil
	}
	base := filepath.Base(dbPath)
	return func() tea.Msg {
		timer := newDebounceTimer()
		defer timer.Stop()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if strings.HasPrefix(filepath.Base(event.Name), base) {
					resetDebounceTimer(timer)
				}
			case <-timer.C:
				return fsChangeMsg{}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				log.Printf("fsnotify: watcher error: %v", err)
				return nil
			}
		}
	}
}

// newDebounceTimer returns a stopped, drained timer.
func newDebounceTimer() *time.Timer {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	return timer
}

func resetDebounceTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(debounceDuration)
}
