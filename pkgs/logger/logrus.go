package logger

import (
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

// Logrus implements Logger around a logrus entry
type Logrus struct {
	entry *logrus.Entry
}

// NewLogrus creates a Logger backed by logrus writing to stderr.
// opts, when provided, is applied to the underlying logrus instance.
func NewLogrus(opts func(l *logrus.Logger)) Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	if opts != nil {
		opts(l)
	}
	return &Logrus{entry: logrus.NewEntry(l)}
}

// NewLogrusWithFileRotation creates a Logger that writes to stderr and also
// to filePath with daily rotation and a 7 day retention.
func NewLogrusWithFileRotation(filePath string) Logger {
	writer, err := rotatelogs.New(
		filePath+".%Y%m%d",
		rotatelogs.WithLinkName(filePath),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return NewLogrus(nil)
	}

	return NewLogrus(func(l *logrus.Logger) {
		l.AddHook(lfshook.NewHook(lfshook.WriterMap{
			logrus.DebugLevel: writer,
			logrus.InfoLevel:  writer,
			logrus.WarnLevel:  writer,
			logrus.ErrorLevel: writer,
			logrus.FatalLevel: writer,
		}, &logrus.JSONFormatter{}))
	})
}

// NewLogrusNoOp creates a Logger that discards everything. Useful in tests.
func NewLogrusNoOp() Logger {
	return NewLogrus(func(l *logrus.Logger) {
		l.SetOutput(filepathDevNull())
	})
}

func filepathDevNull() *os.File {
	f, _ := os.OpenFile(filepath.FromSlash(os.DevNull), os.O_WRONLY, 0)
	return f
}

// SetToDebug sets the logger level to Debug
func (l *Logrus) SetToDebug() {
	l.entry.Logger.SetLevel(logrus.DebugLevel)
}

// SetToInfo sets the logger level to Info
func (l *Logrus) SetToInfo() {
	l.entry.Logger.SetLevel(logrus.InfoLevel)
}

// SetLevel sets the logger level to the given logrus level number
func (l *Logrus) SetLevel(lvl uint32) {
	l.entry.Logger.SetLevel(logrus.Level(lvl))
}

// SetToError sets the logger level to Error
func (l *Logrus) SetToError() {
	l.entry.Logger.SetLevel(logrus.ErrorLevel)
}

// Module returns a logger that tags entries with the given module namespace
func (l *Logrus) Module(ns string) Logger {
	return &Logrus{entry: l.entry.WithField("module", ns)}
}

func toFields(keyValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keyValues); i += 2 {
		if k, ok := keyValues[i].(string); ok {
			fields[k] = keyValues[i+1]
		}
	}
	return fields
}

// Debug logs a message at Debug level
func (l *Logrus) Debug(msg string, keyValues ...interface{}) {
	l.entry.WithFields(toFields(keyValues)).Debug(msg)
}

// Info logs a message at Info level
func (l *Logrus) Info(msg string, keyValues ...interface{}) {
	l.entry.WithFields(toFields(keyValues)).Info(msg)
}

// Warn logs a message at Warn level
func (l *Logrus) Warn(msg string, keyValues ...interface{}) {
	l.entry.WithFields(toFields(keyValues)).Warn(msg)
}

// Error logs a message at Error level
func (l *Logrus) Error(msg string, keyValues ...interface{}) {
	l.entry.WithFields(toFields(keyValues)).Error(msg)
}

// Fatal logs a message at Fatal level and exits
func (l *Logrus) Fatal(msg string, keyValues ...interface{}) {
	l.entry.WithFields(toFields(keyValues)).Fatal(msg)
}
