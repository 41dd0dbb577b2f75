package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// NativeDriver watches dir directly with fsnotify instead of delegating
// to an external watcher command, used when tuick is invoked without an
// explicit --watch-cmd.
type NativeDriver struct {
	Debounce time.Duration
	Log      *slog.Logger
}

type nativeHandle struct {
	watcher *fsnotify.Watcher
	timer   *time.Timer
	mu      sync.Mutex
	done    chan struct{}
}

func (h *nativeHandle) Stop() error {
	close(h.done)
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
	}
	h.mu.Unlock()
	return h.watcher.Close()
}

// Start recursively watches dir, filtering events by patterns (globs
// matched against the base name), and calls onChange after debounce has
// elapsed with no further events.
func (d *NativeDriver) Start(dir string, patterns []string, onChange func()) (Handle, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: fsnotify: %w", err)
	}

	err = filepath.WalkDir(dir, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("watcher: walk %s: %w", dir, err)
	}

	debounce := d.Debounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	h := &nativeHandle{watcher: w, done: make(chan struct{})}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !matchesPatterns(ev.Name, patterns) {
					continue
				}
				h.mu.Lock()
				if h.timer == nil {
					h.timer = time.AfterFunc(debounce, onChange)
				} else {
					h.timer.Reset(debounce)
				}
				h.mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				if d.Log != nil {
					d.Log.Debug("watcher: fsnotify error", "error", err)
				}
			case <-h.done:
				return
			}
		}
	}()

	return h, nil
}
