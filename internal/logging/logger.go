// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls level, format and optional rotated file output
type Config struct {
	Level      string
	Format     string // "text" | "json"
	File       string // empty = stdout only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	base   = logrus.New()
	baseMu sync.Mutex
)

// Init applies cfg to the shared logger
func Init(cfg Config) error {
	baseMu.Lock()
	defer baseMu.Unlock()

	level, err := logrus.ParseLevel(strings.ToLower(defaultString(cfg.Level, "info")))
	if err != nil {
		return err
	}
	base.SetLevel(level)

	if cfg.Format == "json" {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return err
		}
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    defaultInt(cfg.MaxSizeMB, 50),
			MaxBackups: defaultInt(cfg.MaxBackups, 5),
			MaxAge:     defaultInt(cfg.MaxAgeDays, 30),
			Compress:   true,
		})
	}
	base.SetOutput(out)
	return nil
}

// For returns a logger tagged with the component name
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// Logger exposes the shared logger, e.g. for gin's writer
func Logger() *logrus.Logger {
	return base
}

func defaultString(s, d string) string {
	if s == "" {
		return d
	}
	return s
}

func defaultInt(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}
