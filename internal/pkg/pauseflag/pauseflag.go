package pauseflag

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/kenken64/7monthIndicator-sub000/internal/logger"
)

// Flag is the operational pause switch: it is set while a marker file
// exists on disk. The file is watched so operators can pause and resume
// without touching the process.
type Flag struct {
	path string

	mu      sync.RWMutex
	paused  bool
	watcher *fsnotify.Watcher
}

func New(path string) (*Flag, error) {
	f := &Flag{path: path}
	f.refresh()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	f.watcher = watcher
	go f.watch()
	return f, nil
}

// Paused reports whether the marker file currently exists.
func (f *Flag) Paused() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.paused
}

func (f *Flag) Close() error {
	if f.watcher == nil {
		return nil
	}
	return f.watcher.Close()
}

func (f *Flag) watch() {
	for {
		select {
		case evt, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(f.path) {
				continue
			}
			was := f.Paused()
			f.refresh()
			if now := f.Paused(); now != was {
				if now {
					logger.Warnf("trading paused via %s", f.path)
				} else {
					logger.Infof("trading unpaused, %s removed", f.path)
				}
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			logger.Errorf("pause flag watcher: %v", err)
		}
	}
}

func (f *Flag) refresh() {
	_, err := os.Stat(f.path)
	f.mu.Lock()
	f.paused = err == nil
	f.mu.Unlock()
}
