package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"DMChat/logger"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

var (
	currentMu sync.RWMutex
	current   *AppConfig
)

// SetCurrent publishes c as the live config.
func SetCurrent(c *AppConfig) {
	currentMu.Lock()
	defer currentMu.Unlock()
	current = c
}

func Current() *AppConfig {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

// Watch reloads path whenever it changes and hands the new config to onChange.
// Only settings that are safe to swap at runtime should be applied by onChange.
func Watch(ctx context.Context, path string, onChange func(*AppConfig)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return err
	}
	// watch the directory: editors often replace the file instead of writing it
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					debounce = time.After(200 * time.Millisecond)
				}
			case <-debounce:
				debounce = nil
				c, err := Load(path)
				if err != nil {
					logger.Warn("[config] reload failed", zap.String("path", path), zap.Error(err))
					continue
				}
				SetCurrent(c)
				logger.Info("[config] reloaded", zap.String("path", path))
				onChange(c)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("[config] watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// ApplyRuntime applies the hot-reloadable subset of c.
func ApplyRuntime(c *AppConfig) {
	if err := logger.SetLevel(c.Log.Level); err != nil {
		logger.Warn("[config] log level not applied", zap.Error(err))
	}
}
