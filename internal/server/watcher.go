// Package server reloads the log level when the config file changes.
package server

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// WatchConfig watches path and applies log.level from it to level whenever
// the file is written. Other settings need a restart. An empty path is a
// no-op.
func WatchConfig(path string, level zap.AtomicLevel, log *zap.Logger) error {
	if path == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		applyLogLevel(v.GetString("log.level"), level, log.With(zap.String("file", e.Name)))
	})
	v.WatchConfig()
	return nil
}

func applyLogLevel(raw string, level zap.AtomicLevel, log *zap.Logger) {
	if raw == "" {
		return
	}
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		log.Warn("ignoring invalid log level from config", zap.String("level", raw), zap.Error(err))
		return
	}
	log.Info("log level changed", zap.Stringer("level", level.Level()))
}
