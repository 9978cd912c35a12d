package orchestrator

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// HaltWatcher watches a run directory for an operator halt signal. A file
// named "halt" stops scheduling further rounds at the next round boundary;
// in-flight rounds always seal, and the negotiation proceeds directly to
// the decision phase.
type HaltWatcher struct {
	signalsDir string

	mu         sync.RWMutex
	haltSignal bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewHaltWatcher watches runDir/signals for halt files.
func NewHaltWatcher(runDir string) (*HaltWatcher, error) {
	signalsDir := filepath.Join(runDir, "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	hw := &HaltWatcher{
		signalsDir: signalsDir,
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Continue without watcher - Halted falls back to polling
		return hw, nil
	}
	hw.watcher = watcher

	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		hw.watcher = nil
		return hw, nil
	}

	go hw.watch()
	return hw, nil
}

func (hw *HaltWatcher) watch() {
	for {
		select {
		case <-hw.done:
			return
		case event, ok := <-hw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == "halt" && (event.Op&fsnotify.Create != 0 || event.Op&fsnotify.Write != 0) {
				hw.mu.Lock()
				hw.haltSignal = true
				hw.mu.Unlock()
			}
		case <-hw.watcher.Errors:
			// Ignore errors, keep watching
		}
	}
}

// Halted returns true if a halt signal has been received. It also checks
// the file directly in case the watcher missed the create.
func (hw *HaltWatcher) Halted() bool {
	haltPath := filepath.Join(hw.signalsDir, "halt")
	if _, err := os.Stat(haltPath); err == nil {
		hw.mu.Lock()
		hw.haltSignal = true
		hw.mu.Unlock()
	}

	hw.mu.RLock()
	defer hw.mu.RUnlock()
	return hw.haltSignal
}

// Close stops the watcher.
func (hw *HaltWatcher) Close() {
	close(hw.done)
	if hw.watcher != nil {
		hw.watcher.Close()
	}
}
