package store

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch runs until ctx is done, reacting to add/modify/rename/delete
// events on the registry's directory: add/modify re-hash and re-announce
// through Add; delete/rename-away drop the entry through Remove.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			r.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("store watcher error", zap.Error(err))
		}
	}
}

func (r *Registry) handleEvent(event fsnotify.Event) {
	name := storeIDFromPath(event.Name)
	if name == "" {
		return
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		if err := r.Add(name); err != nil {
			r.log.Warn("store watcher: re-index failed", zap.String("store_id", name), zap.Error(err))
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		r.Remove(name)
	}
}

func storeIDFromPath(path string) string {
	base := path
	if idx := strings.LastIndexAny(path, `/\`); idx >= 0 {
		base = path[idx+1:]
	}
	if !strings.HasSuffix(base, fileSuffix) {
		return ""
	}
	return strings.TrimSuffix(base, fileSuffix)
}
