package rules

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/internal/domain/pii"
	"github.com/PhillHH/chat-agent/pkg/safego"
)

// Watcher reloads the ruleset whenever the file changes. A broken edit
// keeps the previous ruleset active until the next good write.
type Watcher struct {
	path    string
	apply   func(*pii.Ruleset)
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

// NewWatcher creates a watcher for the rules file at path. apply receives
// every successfully loaded ruleset, including the initial one.
func NewWatcher(path string, apply func(*pii.Ruleset), logger *zap.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:    path,
		apply:   apply,
		watcher: fsWatcher,
		logger:  logger,
	}, nil
}

// Start performs the initial load and begins watching. A missing file is
// not an error; the watcher waits for it to appear.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.reload(); err != nil && !os.IsNotExist(err) {
		return err
	}

	// Watch the directory, not the file: editors replace files by rename
	// and the create shows up on the directory watch.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	safego.Go(w.logger, "rules.watch", func() {
		w.loop(ctx)
	})

	w.logger.Info("Rules hot-reload watching started",
		zap.String("path", w.path),
	)
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Rules watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != filepath.Base(w.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	if err := w.reload(); err != nil {
		// Partial writes land here too; the next save wins.
		w.logger.Warn("Rules reload failed, keeping previous ruleset",
			zap.String("path", w.path),
			zap.Error(err),
		)
	}
}

func (w *Watcher) reload() error {
	rs, err := Load(w.path)
	if err != nil {
		return err
	}
	w.apply(rs)
	w.logger.Info("Ruleset loaded",
		zap.String("path", w.path),
		zap.Int("rules", len(rs.Rules)),
		zap.Int("labels", len(rs.Labels)),
		zap.Float64("threshold", rs.Threshold),
	)
	return nil
}
