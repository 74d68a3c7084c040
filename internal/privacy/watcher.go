package privacy

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"caseflow/internal/logging"
)

// tableWatcher hot-reloads the classification table when the file changes,
// so tightening the deny list takes effect without a restart.
type tableWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// reloadDebounce coalesces editor write bursts into a single reload.
const reloadDebounce = 250 * time.Millisecond

func watchTable(path string, onReload func(*Table)) (*tableWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("privacy: failed to create watcher: %w", err)
	}
	// Watch the directory: editors often replace the file, which drops a
	// watch registered on the file itself.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("privacy: failed to watch %s: %w", path, err)
	}

	tw := &tableWatcher{watcher: w, done: make(chan struct{})}
	go tw.loop(path, onReload)
	return tw, nil
}

func (tw *tableWatcher) loop(path string, onReload func(*Table)) {
	var timer *time.Timer
	target := filepath.Clean(path)

	for {
		select {
		case ev, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				t, err := LoadTable(path)
				if err != nil {
					logging.Get(logging.CategoryPrivacy).Errorf("table reload failed, keeping previous table: %v", err)
					return
				}
				onReload(t)
			})
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryPrivacy).Warnf("watcher error: %v", err)
		case <-tw.done:
			return
		}
	}
}

func (tw *tableWatcher) close() error {
	close(tw.done)
	return tw.watcher.Close()
}
