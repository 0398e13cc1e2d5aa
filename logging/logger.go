// Package logging configures the process-wide structured logger: console
// output plus a size-rotated file.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger = zap.NewNop().Sugar()

// Options mirror the log section of the config file.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Init builds the global logger. Without a file it logs to stderr only.
func Init(opts Options) error {
	level := zapcore.InfoLevel
	switch strings.ToLower(opts.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
	}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    max(opts.MaxSizeMB, 10),
			MaxBackups: max(opts.MaxBackups, 3),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}

	logger = zap.New(zapcore.NewTee(cores...)).Sugar()
	return nil
}

// L returns the process logger.
func L() *zap.SugaredLogger { return logger }

// Sync flushes buffered log entries.
func Sync() {
	_ = logger.Sync()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
