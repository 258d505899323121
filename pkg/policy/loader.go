package policy

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
)

// reloadDebounce coalesces editor write bursts into a single recompile.
const reloadDebounce = 500 * time.Millisecond

// Loader reads Rego policy modules from disk and can keep a RegoAuthorizer
// in sync with the file while it runs.
type Loader struct {
	logger  zerolog.Logger
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// NewLoader creates a policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
	}
}

// LoadFile reads a .rego policy module from path.
func (l *Loader) LoadFile(path string) (string, error) {
	if strings.ToLower(filepath.Ext(path)) != ".rego" {
		return "", fmt.Errorf("policy file %s must have a .rego extension", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("policy file %s is empty", path)
	}
	return string(data), nil
}

// Authorizer compiles the policy at path into a new RegoAuthorizer.
func (l *Loader) Authorizer(ctx context.Context, path string) (*RegoAuthorizer, error) {
	source, err := l.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewRegoAuthorizer(ctx, source, l.logger)
}

// Watch recompiles the authorizer's policy whenever the file at path is
// rewritten. A module that fails to compile is logged and skipped; the
// authorizer keeps the previous policy. Watching stops when ctx is
// cancelled or Close is called.
func (l *Loader) Watch(ctx context.Context, path string, a *RegoAuthorizer) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to stat policy file %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which drops
	// a direct file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	l.mu.Lock()
	l.watcher = watcher
	l.closed = false
	l.mu.Unlock()

	go l.processEvents(ctx, path, a)

	l.logger.Info().Str("path", path).Msg("Watching policy file")
	return nil
}

func (l *Loader) processEvents(ctx context.Context, path string, a *RegoAuthorizer) {
	var pending *time.Timer
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			l.Close()
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDebounce, func() {
				l.reload(ctx, path, a)
			})
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Policy watcher error")
		}
	}
}

func (l *Loader) reload(ctx context.Context, path string, a *RegoAuthorizer) {
	source, err := l.LoadFile(path)
	if err != nil {
		l.logger.Error().Err(err).Str("path", path).Msg("Policy reload failed")
		return
	}
	if err := a.SetPolicy(ctx, source); err != nil {
		l.logger.Error().Err(err).Str("path", path).Msg("Policy recompile failed, keeping previous policy")
		return
	}
	l.logger.Info().Str("path", path).Msg("Policy reloaded")
}

// Close stops watching. Safe to call more than once.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.watcher == nil {
		return nil
	}
	l.closed = true
	return l.watcher.Close()
}
