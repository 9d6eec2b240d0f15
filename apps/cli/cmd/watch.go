package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/descriptor"
)

// WatchDebounceDelay collapses bursts of file events into one re-run.
var WatchDebounceDelay = 300 * time.Millisecond

// watchDirs returns the directories holding the run's files plus every
// directory below a directory argument.
func watchDirs(files, args []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	for _, f := range files {
		add(filepath.Dir(f))
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			continue
		}
		_ = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err == nil && d.IsDir() {
				add(path)
			}
			return nil
		})
	}
	return dirs
}

// watch re-runs the session whenever a descriptor file is written or
// created, until ctx is done.
func watch(ctx context.Context, s *session) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range watchDirs(s.files, s.args) {
		if err := watcher.Add(dir); err != nil {
			s.logger.Warn("cannot watch directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	fmt.Fprintf(s.stdout, "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	trigger := make(chan string, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !descriptor.IsDescriptor(event.Name) || isConfigFile(event.Name) {
				continue
			}
			name := event.Name
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case trigger <- name:
				default:
				}
			})

		case name := <-trigger:
			fmt.Fprintf(s.stdout, "\nFile changed: %s\nRe-running tests...\n", name)
			if files, err := collectFiles(s.args); err == nil && len(files) > 0 {
				s.files = files
			}
			if _, err := s.runOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("run failed", zap.Error(err))
			}
			fmt.Fprintf(s.stdout, "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", zap.Error(err))
		}
	}
}
