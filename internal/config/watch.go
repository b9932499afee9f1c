package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the config file and calls onReload with each successfully
// loaded revision. A revision that fails to parse or validate goes to
// onError and the previous config stays in effect. Falls back to mtime
// polling when fsnotify is unavailable. Blocks until ctx is canceled.
func Watch(ctx context.Context, path string, onReload func(*Config), onError func(error)) {
	if path == "" {
		path = DefaultPath()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		onError(err)
		watchWithPolling(ctx, path, onReload, onError)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		onError(err)
		watchWithPolling(ctx, path, onReload, onError)
		return
	}

	// Fallback polling ticker in case fsnotify drops events.
	pollTicker := time.NewTicker(2 * time.Second)
	defer pollTicker.Stop()

	lastCheckTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				watchWithPolling(ctx, path, onReload, onError)
				return
			}
			if event.Name == path && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
				// Small delay to ensure the write is complete.
				time.Sleep(50 * time.Millisecond)
				reload(path, onReload, onError)
				lastCheckTime = time.Now()
			}

		case <-pollTicker.C:
			if info, err := os.Stat(path); err == nil && info.ModTime().After(lastCheckTime) {
				time.Sleep(50 * time.Millisecond)
				reload(path, onReload, onError)
				lastCheckTime = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				watchWithPolling(ctx, path, onReload, onError)
				return
			}
			onError(err)
		}
	}
}

// watchWithPolling is the pure polling fallback, 2s interval.
func watchWithPolling(ctx context.Context, path string, onReload func(*Config), onError func(error)) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	lastCheckTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastCheckTime) {
				time.Sleep(50 * time.Millisecond)
				reload(path, onReload, onError)
				lastCheckTime = time.Now()
			}
		}
	}
}

func reload(path string, onReload func(*Config), onError func(error)) {
	cfg, err := Load(path)
	if err != nil {
		onError(err)
		return
	}
	onReload(cfg)
}
