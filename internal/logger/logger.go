// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

// Package logger configures the process-wide logrus logger: level, format,
// and rotating file output with an optional console tee.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fuelink/forecourt/internal/config"
)

// Init applies the logger configuration to the standard logrus logger, which
// every package logs through.
func Init(cfg config.LoggerConfig) error {
	log := logrus.StandardLogger()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		})
	}

	var writers []io.Writer
	if cfg.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	if cfg.EnableConsole || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	if len(writers) == 1 {
		log.SetOutput(writers[0])
	} else {
		log.SetOutput(io.MultiWriter(writers...))
	}

	return nil
}

// WithComponent returns an entry tagged with a component name, the convention
// used across the codebase for subsystem log lines.
func WithComponent(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
