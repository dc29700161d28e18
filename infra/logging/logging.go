// Package logging builds the process logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

type Config struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// New returns a JSON production logger, or a console logger when
// Development is set. An empty level means info.
func New(cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if cfg.Level != "" {
		l, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = l
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
