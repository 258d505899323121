package definition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/entitykit/entitykit/pkg/entity"
)

// ReloadFunc receives freshly built descriptors keyed by class after a
// definition change on disk.
type ReloadFunc func(classes map[string]*entity.Descriptor) error

// Watcher rebuilds class descriptors when definition files change. Reloads
// are debounced so a burst of writes triggers one rebuild.
type Watcher struct {
	loader  *Loader
	cfg     *entity.Config
	logger  zerolog.Logger
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	closed bool
}

// NewWatcher creates a watcher over the given loader.
func NewWatcher(loader *Loader, cfg *entity.Config, logger zerolog.Logger) *Watcher {
	return &Watcher{
		loader: loader,
		cfg:    cfg,
		logger: logger.With().Str("component", "definition-watcher").Logger(),
	}
}

// Watch starts watching paths for definition changes. It returns after
// wiring the filesystem watcher; events are processed until the context is
// cancelled.
func (w *Watcher) Watch(ctx context.Context, paths []string, reload ReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}

		if info.IsDir() {
			if err := w.watchDirectory(path); err != nil {
				w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
			}
		} else {
			if err := watcher.Add(path); err != nil {
				w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch file")
			}
		}
	}

	go w.processEvents(ctx, paths, reload)

	w.logger.Info().Int("paths", len(paths)).Msg("Watching definition paths")
	return nil
}

// watchDirectory adds every subdirectory to the watcher.
func (w *Watcher) watchDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func isDefinitionFile(path string) bool {
	return strings.HasSuffix(path, ".cue") ||
		strings.HasSuffix(path, ".yaml") ||
		strings.HasSuffix(path, ".yml")
}

// processEvents drains filesystem events and triggers debounced rebuilds.
func (w *Watcher) processEvents(ctx context.Context, paths []string, reload ReloadFunc) {
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			w.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isDefinitionFile(event.Name) {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Definition file changed")

			w.loader.Invalidate(event.Name)

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				if err := w.rebuild(paths, reload); err != nil {
					w.logger.Error().Err(err).Msg("Failed to reload definitions")
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// rebuild reloads every watched path and hands the merged descriptor set to
// the reload callback.
func (w *Watcher) rebuild(paths []string, reload ReloadFunc) error {
	classes := make(map[string]*entity.Descriptor)

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		if info.IsDir() {
			built, err := w.loader.BuildDir(path, w.cfg)
			if err != nil {
				return err
			}
			for class, desc := range built {
				classes[class] = desc
			}
			continue
		}

		desc, err := w.loader.BuildFile(path, w.cfg)
		if err != nil {
			return err
		}
		classes[desc.Type()] = desc
	}

	if err := reload(classes); err != nil {
		return fmt.Errorf("failed to apply reloaded definitions: %w", err)
	}

	w.logger.Info().Int("classes", len(classes)).Msg("Definitions reloaded")
	return nil
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.watcher == nil {
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}
