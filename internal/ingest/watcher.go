package ingest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Root         string        // intake directory; it and its direct subdirectories are watched
	ManifestName string        // only events on this file name wake the loop
	Debounce     time.Duration // coalesce rapid create/write bursts
}

// StartWatcher signals on the returned channel when a manifest appears or
// changes under cfg.Root. The channel only says "look again"; it carries no
// paths, and polling stays the source of truth.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan struct{}, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Root == "" {
		logger.Error("watcher start failed: no root provided")
		return nil, nil, errors.New("no root provided")
	}
	wakeCh := make(chan struct{}, 1)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	if err := w.Add(cfg.Root); err != nil {
		logger.Error("failed to watch intake directory", "root", cfg.Root, "error", err)
		_ = w.Close()
		return nil, nil, err
	}
	entries, err := os.ReadDir(cfg.Root)
	if err != nil {
		_ = w.Close()
		return nil, nil, err
	}
	for _, e := range entries {
		if e.IsDir() && !IsHidden(e.Name()) {
			addBatchDir(w, filepath.Join(cfg.Root, e.Name()), logger)
		}
	}

	go func() {
		defer close(wakeCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("failed to close watcher", "error", err)
			}
		}()

		var (
			debounce *time.Timer
			fire     <-chan time.Time
		)
		signal := func() {
			select {
			case wakeCh <- struct{}{}:
			default:
			}
		}

		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return
			case <-fire:
				fire = nil
				signal()
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				// new batch directory directly under the root
				if e.Has(fsnotify.Create) && filepath.Dir(e.Name) == filepath.Clean(cfg.Root) && !IsHidden(e.Name) {
					if st, err := os.Stat(e.Name); err == nil && st.IsDir() {
						addBatchDir(w, e.Name, logger)
					}
				}

				if filepath.Base(e.Name) != cfg.ManifestName || !e.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
					continue
				}
				logger.Debug("manifest event", "path", e.Name, "op", e.Op.String())
				if cfg.Debounce <= 0 {
					signal()
					continue
				}
				if debounce == nil {
					debounce = time.NewTimer(cfg.Debounce)
				} else {
					debounce.Reset(cfg.Debounce)
				}
				fire = debounce.C
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return wakeCh, errCh, nil
}

func addBatchDir(w *fsnotify.Watcher, dir string, logger *slog.Logger) {
	if err := w.Add(dir); err != nil {
		logger.Warn("failed to watch batch directory", "path", dir, "error", err)
	}
}
