package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/devicelab-dev/shopsmoke/pkg/logger"
	"github.com/devicelab-dev/shopsmoke/pkg/scenario"
)

// Changes closer together than this trigger one re-run.
const watchDebounce = 300 * time.Millisecond

// watch runs the scenario files once, then again after every change until
// ctx is cancelled. Each run gets a fresh browser session.
func watch(ctx context.Context, cfg *RunConfig, out io.Writer) error {
	if len(cfg.Paths) == 0 {
		return fmt.Errorf("--watch needs scenario files or folders")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Close()
	if err := addWatches(w, cfg.Paths); err != nil {
		return err
	}

	rerun := func() {
		if _, err := runOnce(ctx, cfg, out); err != nil {
			fmt.Fprintf(out, "\n%v\n", err)
		}
		fmt.Fprintf(out, "\nwatching %d path(s) for changes, Ctrl+C to stop\n", len(cfg.Paths))
	}
	rerun()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			logger.Debug("watch: %s", ev)
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.Add(ev.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			timerC = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch: %v", err)
		case <-timerC:
			timerC = nil
			rerun()
		}
	}
}

// addWatches watches directories recursively, and the parent directory of
// files since editors often replace files instead of writing them.
func addWatches(w *fsnotify.Watcher, paths []string) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		if !info.IsDir() {
			if err := w.Add(filepath.Dir(path)); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			continue
		}
		err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return w.Add(p)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
	return nil
}

// relevant reports whether ev can change what a run would do.
func relevant(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return false
	}
	if scenario.IsScenarioFile(ev.Name) {
		return true
	}
	// New directories may hold scenarios.
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}
