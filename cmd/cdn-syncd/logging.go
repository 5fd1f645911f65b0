package main

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/apexmedia/cdn-sync-agent/internal/config"
)

// setupLogger builds a console logger, teeing into a rotated file when
// file logging is enabled.
func setupLogger(verbose bool, logCfg *config.LoggingConfig) (*zap.Logger, error) {
	level := zap.InfoLevel
	if logCfg != nil && logCfg.Level != "" {
		if err := level.UnmarshalText([]byte(logCfg.Level)); err != nil {
			level = zap.InfoLevel
		}
	}
	if verbose {
		level = zap.DebugLevel
	}

	var consoleEncoder zapcore.Encoder
	if verbose {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleEncoder = zapcore.NewJSONEncoder(encCfg)
	}

	consoleCore := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level)

	if logCfg == nil || !logCfg.Enabled {
		return zap.New(consoleCore), nil
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logCfg.Directory, "cdn-syncd.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level)

	return zap.New(zapcore.NewTee(consoleCore, fileCore)), nil
}
