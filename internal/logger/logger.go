// Package logger hands out named logrus loggers sharing one configuration.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, format and destination for every named logger.
type Config struct {
	Level  string
	Format string // "text" or "json"
	// File enables rotated file output next to stdout when non-empty.
	File string
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

var (
	loggers   = make(map[string]*logrus.Logger)
	loggersMu sync.Mutex
	config    = DefaultConfig()
	output    io.Writer
)

// Init applies cfg to loggers created from now on and to existing ones.
func Init(cfg Config) error {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if _, err := logrus.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	config = cfg
	output = nil

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		output = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}

	for _, l := range loggers {
		configure(l)
	}
	return nil
}

// Get returns the logger for a component, creating it on first use.
func Get(name string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	l, ok := loggers[name]
	if !ok {
		l = logrus.New()
		configure(l)
		loggers[name] = l
	}
	return l.WithField("component", name)
}

// SetOutput redirects every logger, mostly for tests.
func SetOutput(w io.Writer) {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	output = w
	for _, l := range loggers {
		l.SetOutput(w)
	}
}

func configure(l *logrus.Logger) {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if config.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				s := strings.Split(f.Function, ".")
				return s[len(s)-1], fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
			},
		})
	}

	if output != nil {
		l.SetOutput(output)
	} else {
		l.SetOutput(os.Stdout)
	}
}
