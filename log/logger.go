/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package log provides the structured logger used across restlimit (call limiter, HTTP server, CLI).
package log

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a typed key-value pair attached to a log entry.
type Field = logf.Field

// LogFunc logs a message at a bound level.
// nolint: revive
type LogFunc = logf.LogFunc

// CloseFunc flushes pending entries and closes the asynchronous writer returned by NewLogger.
type CloseFunc logf.ChannelWriterCloseFunc

// Field constructors.
var (
	Error    = logf.Error
	String   = logf.String
	Strings  = logf.Strings
	Int      = logf.Int
	Int64    = logf.Int64
	Duration = logf.Duration
)

// FieldLogger is the logging interface accepted by all restlimit components.
type FieldLogger interface {
	With(...Field) FieldLogger
	WithLevel(level Level) FieldLogger

	Debug(string, ...Field)
	Info(string, ...Field)
	Warn(string, ...Field)
	Error(string, ...Field)

	AtLevel(Level, func(LogFunc))
}

// LogfAdapter implements FieldLogger on top of logf.Logger.
type LogfAdapter struct {
	Logger *logf.Logger
}

var _ FieldLogger = (*LogfAdapter)(nil)

// NewDisabledLogger returns a logger that drops everything.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{logf.NewDisabledLogger()}
}

// NewLogger builds an asynchronous logger from cfg. Call the returned CloseFunc before exit,
// otherwise the last entries may be lost.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	channel, closeFunc := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg, outputWriter(cfg)),
		EnableSyncOnError: true,
	})
	logger := logf.NewLogger(cfg.Level.logfLevel(), channel).With(logf.Int("pid", os.Getpid()))
	if cfg.AddCaller {
		logger = logger.WithCaller().WithCallerSkip(1) // the adapter's own frame
	}
	return &LogfAdapter{logger}, CloseFunc(closeFunc)
}

// NewLoggerWithWriter builds a synchronous logger writing to w. cfg.Output and cfg.File are ignored.
func NewLoggerWithWriter(cfg *Config, w io.Writer) FieldLogger {
	return &LogfAdapter{logf.NewLogger(cfg.Level.logfLevel(), &flushingWriter{appender: newAppender(cfg, w)})}
}

// flushingWriter appends and flushes every entry under a lock.
type flushingWriter struct {
	mu       sync.Mutex
	appender logf.Appender
}

//nolint:gocritic // logf.EntryWriter passes entries by value.
func (fw *flushingWriter) WriteEntry(e logf.Entry) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.appender.Append(e) == nil {
		_ = fw.appender.Flush()
	}
}

func (l *LogfAdapter) With(fs ...Field) FieldLogger {
	return &LogfAdapter{l.Logger.With(fs...)}
}

// WithLevel returns a logger with an additional level check. It can only make logging less verbose.
func (l *LogfAdapter) WithLevel(level Level) FieldLogger {
	return &LogfAdapter{l.Logger.WithLevel(level.logfLevel())}
}

func (l *LogfAdapter) Debug(msg string, fields ...Field) { l.Logger.Debug(msg, fields...) }
func (l *LogfAdapter) Info(msg string, fields ...Field)  { l.Logger.Info(msg, fields...) }
func (l *LogfAdapter) Warn(msg string, fields ...Field)  { l.Logger.Warn(msg, fields...) }
func (l *LogfAdapter) Error(msg string, fields ...Field) { l.Logger.Error(msg, fields...) }

// AtLevel calls fn only if level is enabled. Useful when building fields is expensive.
func (l *LogfAdapter) AtLevel(level Level, fn func(LogFunc)) {
	l.Logger.AtLevel(level.logfLevel(), fn)
}

func (lvl Level) logfLevel() logf.Level {
	switch lvl {
	case LevelError:
		return logf.LevelError
	case LevelWarn:
		return logf.LevelWarn
	case LevelDebug:
		return logf.LevelDebug
	default:
		return logf.LevelInfo
	}
}

func outputWriter(cfg *Config) io.Writer {
	switch cfg.Output {
	case OutputStderr:
		return os.Stderr
	case OutputFile:
		rotation := cfg.File.Rotation
		return &lumberjack.Logger{
			Filename:   expandFilePath(cfg.File.Path),
			MaxSize:    int(rotation.MaxSize / (1024 * 1024)), // megabytes
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAgeDays,
			Compress:   rotation.Compress,
			LocalTime:  rotation.LocalTimeInNames,
		}
	default:
		return os.Stdout
	}
}

func newAppender(cfg *Config, w io.Writer) logf.Appender {
	if cfg.Format != FormatText {
		return logf.NewWriteAppender(w, logf.NewJSONEncoder(logf.JSONEncoderConfig{
			FieldKeyTime: "time",
			EncodeTime:   logf.RFC3339NanoTimeEncoder,
		}))
	}
	noColor := cfg.NoColor
	return logftext.NewAppender(w, logftext.EncoderConfig{NoColor: &noColor, EncodeTime: logf.RFC3339NanoTimeEncoder})
}

// expandFilePath substitutes {{starttime}} and {{pid}} placeholders in the log file path.
func expandFilePath(path string) string {
	return strings.NewReplacer(
		"{{starttime}}", time.Now().Format("200601021504"),
		"{{pid}}", strconv.Itoa(os.Getpid()),
	).Replace(path)
}
