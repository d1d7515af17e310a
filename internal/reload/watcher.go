// Package reload detects edits to the configuration file.
package reload

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/timzifer/mistpanel/config"
)

// Watcher remembers size and mtime of the file a configuration was loaded
// from and reports when either changes or the file disappears.
type Watcher struct {
	mu      sync.Mutex
	path    string
	modTime time.Time
	size    int64
	exists  bool
}

// NewWatcher starts tracking cfg.Source.
func NewWatcher(cfg *config.Config) (*Watcher, error) {
	w := &Watcher{}
	if err := w.Update(cfg); err != nil {
		return nil, err
	}
	return w, nil
}

// Update re-baselines the watcher, typically after a successful reload.
func (w *Watcher) Update(cfg *config.Config) error {
	if w == nil {
		return nil
	}
	if cfg == nil || cfg.Source == "" {
		return errors.New("configuration has no source file")
	}
	info, err := os.Stat(cfg.Source)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.path = cfg.Source
	w.exists = err == nil
	if w.exists {
		w.modTime = info.ModTime()
		w.size = info.Size()
	}
	return nil
}

// Path returns the tracked file.
func (w *Watcher) Path() string {
	if w == nil {
		return ""
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// Changed reports whether the file differs from the last baseline. A file
// that vanished counts as changed; one that never existed does not.
func (w *Watcher) Changed() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.path == "" {
		return false
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return w.exists
	}
	if !w.exists {
		return true
	}
	return info.ModTime().After(w.modTime) || info.Size() != w.size
}
