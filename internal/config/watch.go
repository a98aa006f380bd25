package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a scenario file when it changes on disk and hands the
// fresh config to the callback. Invalid edits are logged and skipped; the
// previous config stays in effect.
type Watcher struct {
	path     string
	onChange func(*Config)
	logger   *zap.Logger
	fs       *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher starts watching path. The callback runs on the watcher's
// goroutine; keep it short.
func NewWatcher(path string, logger *zap.Logger, onChange func(*Config)) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors typically replace the file, which drops
	// a watch placed on the file itself.
	if err := fs.Add(filepath.Dir(path)); err != nil {
		_ = fs.Close()
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		logger:   logger,
		fs:       fs,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fs.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("ignoring invalid scenario file edit",
					zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.logger.Info("scenario file reloaded", zap.String("path", w.path))
			w.onChange(cfg)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("scenario watcher error", zap.Error(err))
		}
	}
}
