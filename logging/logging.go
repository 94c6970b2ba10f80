// Package logging builds the provisioner's run logger: console output
// mirrored into a per-run timestamped log file.
package logging

import (
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultDir is where run logs land unless overridden.
const DefaultDir = "/var/log/mdprov"

// RunFile returns the log file path for a run starting now.
func RunFile(dir string) string {
	return filepath.Join(dir,
		"mdprov-"+time.Now().Format("20060102-150405")+".log")
}

// New returns a sugared logger writing every line to both stdout and
// logFile. The file sink is size-capped as a backstop; one run writes one
// file.
func New(logFile string, debug bool) (*zap.SugaredLogger, error) {
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return nil, err
	}

	hook := lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    50, // megabytes
		MaxBackups: 1,
	}

	syncer := zapcore.NewMultiWriteSyncer(
		zapcore.AddSync(os.Stdout), zapcore.AddSync(&hook))

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		syncer,
		zap.NewAtomicLevelAt(level))

	return zap.New(core).Sugar(), nil
}
