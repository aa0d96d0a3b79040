package ml

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultReloadDelay = 250 * time.Millisecond

// Watcher reloads an AssetStore when its model or encoding file changes.
type Watcher struct {
	store   *AssetStore
	watcher *fsnotify.Watcher
	files   map[string]bool
	delay   time.Duration
	logger  *zap.Logger

	// OnReload, when set, is called after every successful reload.
	OnReload func(*Assets)
}

func NewWatcher(store *AssetStore, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	src := store.Source()
	files := make(map[string]bool, 2)
	dirs := make(map[string]bool, 2)
	for _, p := range []string{src.ModelPath, src.EncodingPath} {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, err
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	// Watch directories rather than files so atomic replace-by-rename is seen.
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	return &Watcher{
		store:   store,
		watcher: fw,
		files:   files,
		delay:   defaultReloadDelay,
		logger:  logger,
	}, nil
}

// Run blocks until ctx is cancelled, reloading after each burst of changes.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.delay)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("asset changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.delay)
			pending = true

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("asset watcher error", zap.Error(err))

		case <-timer.C:
			pending = false
			w.reload()
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return w.files[abs]
}

func (w *Watcher) reload() {
	assets, err := w.store.Load()
	if err != nil {
		w.logger.Error("asset reload failed, keeping previous model", zap.Error(err))
		return
	}
	w.logger.Info("assets reloaded",
		zap.Uint64("generation", assets.Generation),
		zap.Int("features", assets.Model.FeatureCount()))
	if w.OnReload != nil {
		w.OnReload(assets)
	}
}
