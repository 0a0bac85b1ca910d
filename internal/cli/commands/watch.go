package commands

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/wellplan/internal/cli/config"
	"github.com/spf13/cobra"
)

// watchDebounce coalesces the bursts of events editors produce on save.
const watchDebounce = 100 * time.Millisecond

// watchAndGenerate generates once, then again every time the config file
// changes, until interrupted. Generation errors are reported and watching goes on.
func watchAndGenerate(cmd *cobra.Command, name string, opts *GenerateOptions) error {
	cfgFile := config.GetConfigFileUsed()
	if cfgFile == "" {
		return fmt.Errorf("--watch needs a config file\nHint: run 'wellplan init' or pass --config")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	once := *opts
	once.NoPrompt = true
	regenerate := func() {
		cmdCtx := NewCommandContext(cmd)
		if err := generateOnce(cmd, cmdCtx, name, &once); err != nil {
			cmdCtx.Renderer.Error(err.Error())
		}
	}
	regenerate()

	return watchFile(ctx, cfgFile, func() {
		if _, err := config.LoadConfigWithParams(cfgFile, cmd.Root().PersistentFlags(), name, cmd.Flags()); err != nil {
			NewCommandContext(cmd).Renderer.Error(err.Error())
			return
		}
		regenerate()
	})
}

// watchFile calls onChange after writes to path settle. The parent directory
// is watched so editors that replace the file on save are still seen.
func watchFile(ctx context.Context, path string, onChange func()) error {
	watcher, abs, err := newFileWatcher(path)
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()
	return watchEvents(ctx, watcher, abs, onChange)
}

// newFileWatcher watches the directory holding path and returns the absolute
// path events are matched against.
func newFileWatcher(path string) (*fsnotify.Watcher, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, "", err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, "", fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return watcher, abs, nil
}

func watchEvents(ctx context.Context, watcher *fsnotify.Watcher, abs string, onChange func()) error {
	// Debounce timer
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			debounce = time.After(watchDebounce)

		case <-debounce:
			debounce = nil
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		}
	}
}
