package log

import (
	"context"
	"os"
	"strings"
	"sync/atomic"

	"trustify/internal/config"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var (
	rootLogger = logrus.NewEntry(logrus.StandardLogger())

	// L accesses the current logger from the context
	L = loggerFromContext

	initAtLeastOnce atomic.Bool
)

type ctxLogKey struct{}

const defaultTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// InitConfig applies level, output and formatting to the process-wide logger.
func InitConfig(conf config.LogConfig) {
	initAtLeastOnce.Store(true)

	SetLevel(conf.Level)

	if conf.File != "" {
		rootLogger.Infof("Logs diverted to %s", conf.File)
		logrus.SetOutput(&lumberjack.Logger{
			Filename:   conf.File,
			MaxSize:    conf.FileMaxSizeMB,
			MaxBackups: conf.FileMaxBackups,
			Compress:   true,
		})
	} else {
		logrus.SetOutput(os.Stderr)
	}

	setFormatting(conf.Format)
}

// EnsureInit falls back to defaults for code paths (mostly tests) that never call InitConfig.
func EnsureInit() {
	if !initAtLeastOnce.Load() {
		InitConfig(config.LogConfig{})
	}
}

// WithLogger adds the specified logger to the context
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	EnsureInit()
	return context.WithValue(ctx, ctxLogKey{}, logger)
}

// WithLogField adds the specified field to the logger in the context
func WithLogField(ctx context.Context, key, value string) context.Context {
	EnsureInit()
	if len(value) > 61 {
		value = value[0:61] + "..."
	}
	return WithLogger(ctx, loggerFromContext(ctx).WithField(key, value))
}

func loggerFromContext(ctx context.Context) *logrus.Entry {
	logger := ctx.Value(ctxLogKey{})
	if logger == nil {
		return rootLogger
	}
	return logger.(*logrus.Entry)
}

func SetLevel(level string) {
	var l logrus.Level
	switch strings.ToLower(level) {
	case "error":
		l = logrus.ErrorLevel
	case "warn", "warning":
		l = logrus.WarnLevel
	case "debug":
		l = logrus.DebugLevel
	case "trace":
		l = logrus.TraceLevel
	default:
		l = logrus.InfoLevel
	}
	logrus.SetLevel(l)
}

func IsDebugEnabled() bool {
	return logrus.IsLevelEnabled(logrus.DebugLevel)
}

func setFormatting(format string) {
	var formatter logrus.Formatter
	switch strings.ToLower(format) {
	case "json":
		formatter = &logrus.JSONFormatter{
			TimestampFormat: defaultTimeFormat,
		}
		logrus.SetReportCaller(false)
	case "detailed":
		formatter = &logrus.TextFormatter{
			TimestampFormat: defaultTimeFormat,
			FullTimestamp:   true,
		}
		logrus.SetReportCaller(true)
	default:
		formatter = &prefixed.TextFormatter{
			TimestampFormat: defaultTimeFormat,
			ForceFormatting: true,
			FullTimestamp:   true,
		}
		logrus.SetReportCaller(false)
	}
	logrus.SetFormatter(formatter)
}
