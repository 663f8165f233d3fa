package satellites

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Invalidatable is anything that can drop its cached generation.
type Invalidatable interface {
	Invalidate()
}

// WatchFile invalidates reg whenever path is written, created, renamed or
// removed. The parent directory is watched because editors and config
// management usually replace the file rather than write it in place.
// It blocks until ctx is done.
func WatchFile(ctx context.Context, path string, reg Invalidatable, log *zap.SugaredLogger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	log.Infow("watching satellites file", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				log.Infow("satellites file changed", "op", ev.Op.String())
				reg.Invalidate()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnw("satellites watcher error", "err", err)
		}
	}
}
