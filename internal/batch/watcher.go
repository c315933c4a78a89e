package batch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher calls a callback when one file changes. It watches the parent
// directory so editors that replace the file on save are still noticed.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	callback func()
	debounce time.Duration
	logger   *slog.Logger

	timer *time.Timer
	mu    sync.Mutex
}

// NewFileWatcher watches path
func NewFileWatcher(path string, callback func(), logger *slog.Logger) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWatcher{
		watcher:  watcher,
		path:     abs,
		callback: callback,
		debounce: 500 * time.Millisecond,
		logger:   logger.With("component", "watch"),
	}, nil
}

// SetDebounce sets how long to wait for further changes before calling back
func (fw *FileWatcher) SetDebounce(d time.Duration) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.debounce = d
}

// Run delivers events until ctx is done, then closes the watcher
func (fw *FileWatcher) Run(ctx context.Context) {
	defer fw.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			fw.mu.Lock()
			if fw.timer != nil {
				fw.timer.Stop()
			}
			fw.mu.Unlock()
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("file watch error", "error", err)
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != fw.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounce, fw.callback)
}
