package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchDebounce absorbs editors and atomic-save tools that touch the config
// file several times per write.
const watchDebounce = 500 * time.Millisecond

// Watch reloads the store whenever its config file changes on disk. The
// watcher runs until ctx is cancelled; it never mutates shared state itself,
// all updates go through Store.Reload. Watching the parent directory instead
// of the file keeps the watch alive across rename-based atomic saves.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	s.logger.Info("watching config file", zap.String("path", s.path))

	go s.watchLoop(ctx, watcher)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	target, _ := filepath.Abs(s.path)

	var pending bool
	var lastEvent time.Time
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if abs, _ := filepath.Abs(event.Name); abs != target {
				continue
			}
			s.logger.Debug("config file changed", zap.String("op", event.Op.String()))
			pending = true
			lastEvent = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("config watch error", zap.Error(err))

		case <-ticker.C:
			if pending && time.Since(lastEvent) >= watchDebounce {
				pending = false
				s.Reload()
			}
		}
	}
}
