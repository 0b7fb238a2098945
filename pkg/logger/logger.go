package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-co-op/gocron/v2"
	"github.com/siegecorps/siegebot/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a new logger instance
func NewLogger(cfg *config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		})
	}

	switch cfg.Output {
	case "file":
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
			return nil, err
		}
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize, // megabytes
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge, // days
			Compress:   true,
		})
	default:
		logger.SetOutput(os.Stdout)
	}

	return logger, nil
}

// WithContext adds the conversation fields every pipeline log line carries
func WithContext(logger *logrus.Logger, chatID int64, userID int64) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"user_id": userID,
	})
}

// schedulerLogger routes gocron's key/value logging into logrus
type schedulerLogger struct {
	entry *logrus.Entry
}

// NewSchedulerLogger returns a gocron.Logger backed by logger
func NewSchedulerLogger(logger *logrus.Logger) gocron.Logger {
	return &schedulerLogger{entry: logger.WithField("component", "scheduler")}
}

func (l *schedulerLogger) Debug(msg string, args ...any) { l.with(args).Debug(msg) }
func (l *schedulerLogger) Info(msg string, args ...any)  { l.with(args).Info(msg) }
func (l *schedulerLogger) Warn(msg string, args ...any)  { l.with(args).Warn(msg) }
func (l *schedulerLogger) Error(msg string, args ...any) { l.with(args).Error(msg) }

func (l *schedulerLogger) with(args []any) *logrus.Entry {
	if len(args) == 0 {
		return l.entry
	}
	fields := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 < len(args) {
			fields[key] = args[i+1]
		} else {
			fields["extra"] = args[i]
		}
	}
	return l.entry.WithFields(fields)
}
