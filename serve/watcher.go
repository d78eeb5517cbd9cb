package main

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Paranoid-AF/ghostline/generate"
)

// reloadDelay coalesces the burst of events an editor produces when saving.
const reloadDelay = 250 * time.Millisecond

// watchedFiles are the files in the config dir whose changes trigger a reload.
var watchedFiles = map[string]bool{
	"config.json": true,
	"prompt.md":   true,
}

// ConfigWatcher reloads the engine when the config or prompt file changes.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	debounce *generate.Debouncer
	done     chan struct{}
}

// WatchConfig watches dir and calls reload, debounced, after relevant changes.
// The directory itself is watched so that atomic saves (write + rename) are
// seen.
func WatchConfig(dir string, reload func()) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	cw := &ConfigWatcher{
		watcher:  w,
		debounce: generate.NewDebouncer(reloadDelay, reload),
		done:     make(chan struct{}),
	}
	go cw.loop()
	return cw, nil
}

func (cw *ConfigWatcher) loop() {
	defer close(cw.done)
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !watchedFiles[filepath.Base(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			slog.Debug("config changed", "file", event.Name, "op", event.Op.String())
			cw.debounce.Call()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

// Close stops watching. A pending reload is dropped.
func (cw *ConfigWatcher) Close() error {
	cw.debounce.Stop()
	err := cw.watcher.Close()
	<-cw.done
	return err
}
