package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// ReloadableFields is the subset of Config that may change without a
// restart: log level and scheduler intervals, per the ambient stack note
// that only non-identity settings hot-reload.
type ReloadableFields struct {
	LogLevel                      string
	SelfEvaluationIntervalMs      int64
	SyncPulseIntervalMs           int64
	MemoryConsolidationIntervalMs int64
	HealthCheckIntervalMs         int64
	BreakerEvaluationIntervalMs   int64
	DependencyAuditIntervalMs     int64
	IntrospectionIntervalMs       int64
}

func (c *Config) reloadable() ReloadableFields {
	return ReloadableFields{
		LogLevel:                      c.LogLevel,
		SelfEvaluationIntervalMs:      c.SelfEvaluationIntervalMs,
		SyncPulseIntervalMs:           c.SyncPulseIntervalMs,
		MemoryConsolidationIntervalMs: c.MemoryConsolidationIntervalMs,
		HealthCheckIntervalMs:         c.HealthCheckIntervalMs,
		BreakerEvaluationIntervalMs:   c.BreakerEvaluationIntervalMs,
		DependencyAuditIntervalMs:     c.DependencyAuditIntervalMs,
		IntrospectionIntervalMs:       c.IntrospectionIntervalMs,
	}
}

// WatchReload watches cfg.ConfigFile (an .env-style file) for writes and
// invokes onChange with the re-decoded reloadable fields whenever it
// changes. It is a no-op returning a nil stop func if ConfigFile is unset.
// Identity settings (gateway secret, store DSN, credentials) are never
// re-read here even if present in the watched file — only the reloadable
// subset is applied.
func WatchReload(cfg *Config, logger *zap.Logger, onChange func(ReloadableFields)) (stop func(), err error) {
	if cfg.ConfigFile == "" {
		return func() {}, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: fsnotify watcher: %w", err)
	}
	if err := watcher.Add(cfg.ConfigFile); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", cfg.ConfigFile, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				// godotenv.Load never replaces variables already set in the
				// process, so the rewritten file is applied with Overload.
				if loadErr := godotenv.Overload(cfg.ConfigFile); loadErr != nil {
					logger.Warn("config: reload failed, keeping previous values", zap.Error(loadErr))
					continue
				}
				reloaded, loadErr := Load("")
				if loadErr != nil {
					logger.Warn("config: reload failed, keeping previous values", zap.Error(loadErr))
					continue
				}
				logger.Info("config: reloaded", zap.String("file", cfg.ConfigFile))
				onChange(reloaded.reloadable())
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config: watcher error", zap.Error(werr))
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
