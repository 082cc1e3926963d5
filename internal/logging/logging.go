// Package logging provides the process-wide logger. The daemon's hot paths
// (audit, governance, breaker decisions) log through zap's structured,
// allocation-light API; CLI/tool-facing human output goes through a thin
// logrus wrapper matching the teacher's own pkg/logger. Both are
// initialized once at boot and injected into subsystems explicitly — no
// package-level singleton beyond the default instance used before config
// is available.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls both loggers. Level/Format/Output/FilePrefix mirror the
// teacher's LoggingConfig field names; cmd/sentineld fills them from
// internal/config's values.
type Config struct {
	Level      string
	Format     string // "json" or "text"
	Output     string // "stdout" or "file"
	FilePrefix string
	Dir        string
}

// Human wraps logrus.Logger for CLI-facing output.
type Human struct {
	*logrus.Logger
}

// New builds the zap structured logger used throughout the daemon.
func New(cfg Config) (*zap.Logger, error) {
	logger, _, err := NewAtomic(cfg)
	return logger, err
}

// NewAtomic builds the zap structured logger backed by an AtomicLevel, so a
// caller holding the returned level can raise or lower verbosity at runtime
// (internal/config.WatchReload's reason for existing) without rebuilding
// the core.
func NewAtomic(cfg Config) (*zap.Logger, zap.AtomicLevel, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		_ = level.UnmarshalText([]byte(strings.ToLower(cfg.Level)))
	}

	var encoder zapcore.Encoder
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if strings.ToLower(cfg.Format) == "text" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	writer, err := writerFor(cfg)
	if err != nil {
		return nil, level, err
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(writer), level)
	return zap.New(core, zap.AddCaller()), level, nil
}

// NewHuman builds the logrus-backed logger for CLI/tool-facing output,
// adapted from the teacher's pkg/logger.New.
func NewHuman(cfg Config) *Human {
	l := logrus.New()
	lvl, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.ToLower(cfg.Format) == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	w, err := writerFor(cfg)
	if err != nil {
		l.SetOutput(os.Stdout)
	} else {
		l.SetOutput(w)
	}
	return &Human{Logger: l}
}

func writerFor(cfg Config) (io.Writer, error) {
	if strings.ToLower(cfg.Output) != "file" {
		return os.Stdout, nil
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	prefix := cfg.FilePrefix
	if prefix == "" {
		prefix = "sentineld"
	}
	path := filepath.Join(dir, prefix+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return io.MultiWriter(os.Stdout, f), nil
}

// NewDefault returns a zap logger at info level writing JSON to stdout, for
// use before configuration has been loaded.
func NewDefault() *zap.Logger {
	l, _ := New(Config{Level: "info", Format: "json", Output: "stdout"})
	return l
}
