// Package log is the structured logger shared by the decoder and the command line tools.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-stack/stack"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where log lines go and how verbose they are.
type Config struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
	Console    bool   `yaml:"console"`
}

var logger = newLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, zerolog.InfoLevel)

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Init replaces the package logger according to cfg.
// An empty Level keeps "info"; an empty File logs to stderr.
func Init(cfg Config) error {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return errors.Annotatef(err, "log: invalid level %q", cfg.Level)
		}
		level = l
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if cfg.File != "" {
		rolling := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		if cfg.Console {
			w = zerolog.MultiLevelWriter(rolling, w)
		} else {
			w = rolling
		}
	}
	logger = newLogger(w, level)
	return nil
}

// SetOutput sends log lines as JSON to w. Used by tests.
func SetOutput(w io.Writer, level zerolog.Level) {
	logger = newLogger(w, level)
}

// caller skips caller itself and the exported helper that invoked it.
func caller() string {
	return fmt.Sprintf("%v", stack.Caller(2))
}

func Debugf(format string, v ...interface{}) {
	if logger.GetLevel() > zerolog.DebugLevel {
		return
	}
	logger.Debug().Str("caller", caller()).Msgf(format, v...)
}

func Infof(format string, v ...interface{}) {
	logger.Info().Str("caller", caller()).Msgf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	logger.Warn().Str("caller", caller()).Msgf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	logger.Error().Str("caller", caller()).Msgf(format, v...)
}
