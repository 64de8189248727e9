package rules

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads a rules file into a Source whenever it changes on disk.
// A document that fails to parse or validate is logged and ignored.
type Watcher struct {
	path     string
	source   *Source
	log      zerolog.Logger
	debounce time.Duration
	onReload func(ok bool)
}

// NewWatcher creates a watcher for path feeding source
func NewWatcher(path string, source *Source, log zerolog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		source:   source,
		log:      log.With().Str("component", "rules").Str("path", path).Logger(),
		debounce: 200 * time.Millisecond,
	}
}

// Run blocks until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors and config management replace the file
	// by rename, which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	target := filepath.Clean(w.path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(w.debounce)
			}

		case <-pending:
			pending = nil
			w.Reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("rules watcher error")
		}
	}
}

// OnReload registers fn to run after every reload attempt. Must be called
// before Run.
func (w *Watcher) OnReload(fn func(ok bool)) {
	w.onReload = fn
}

// Reload reads the file once and swaps it in if valid
func (w *Watcher) Reload() bool {
	ok := w.reload()
	if w.onReload != nil {
		w.onReload(ok)
	}
	return ok
}

func (w *Watcher) reload() bool {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Error().Err(err).Str("active", w.source.Current().Label()).Msg("rules reload rejected, keeping previous document")
		return false
	}
	if err := w.source.Swap(cfg); err != nil {
		w.log.Error().Err(err).Msg("rules reload rejected, keeping previous document")
		return false
	}
	w.log.Info().Str("rules_version", cfg.Label()).Msg("rules reloaded")
	return true
}
