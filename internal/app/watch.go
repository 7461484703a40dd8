package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 500 * time.Millisecond

// watchConfig emits one reload signal per burst of changes to the config source.
// A file path is watched through its directory so editor rename-and-replace saves are seen;
// a directory path reacts to *.toml changes only.
// Params: ctx stops the watcher; path config file or directory; debounce quiet period; logger diagnostics.
// Returns: signal channel or watcher setup error.
func watchConfig(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger) (<-chan struct{}, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config %q: %w", path, err)
	}

	target := filepath.Clean(path)
	dir := target
	relevant := func(name string) bool {
		return strings.EqualFold(filepath.Ext(name), ".toml")
	}
	if !info.IsDir() {
		dir = filepath.Dir(target)
		relevant = func(name string) bool {
			return filepath.Clean(name) == target
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %q: %w", dir, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()

		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !relevant(event.Name) || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				timerC = timer.C
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", slog.String("error", watchErr.Error()))
			case <-timerC:
				timerC = nil
				logger.Info("config change detected", slog.String("path", path))
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out, nil
}

// mergeSignals forwards signals from every source into one coalescing channel.
// Params: ctx stops forwarding; sources nil entries are ignored.
// Returns: merged channel.
func mergeSignals(ctx context.Context, sources ...<-chan struct{}) <-chan struct{} {
	out := make(chan struct{}, 1)
	for _, source := range sources {
		if source == nil {
			continue
		}
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-source:
					if !ok {
						return
					}
					select {
					case out <- struct{}{}:
					default:
					}
				}
			}
		}()
	}
	return out
}
