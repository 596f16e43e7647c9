// Package wlog provides structured, per-subsystem logging for wheelhouse.
package wlog

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Log is the logging interface used throughout wheelhouse. Concrete
// implementations wrap logrus, but callers never depend on logrus directly.
type Log interface {
	WithField(name string, value interface{}) Log
	WithFields(fields Fields) Log
	Trace(args ...interface{})
	Tracef(msg string, args ...interface{})
	Debug(args ...interface{})
	Debugf(msg string, args ...interface{})
	Info(args ...interface{})
	Infof(msg string, args ...interface{})
	Warn(args ...interface{})
	Warnf(msg string, args ...interface{})
	Error(args ...interface{})
	Errorf(msg string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(msg string, args ...interface{})
	Panic(args ...interface{})
	Panicf(msg string, args ...interface{})
	Print(args ...interface{})
}

// Fields is a set of keys/values to include in a structured log message.
type Fields map[string]interface{}

// Factory produces a Log scoped to a named subsystem, e.g. "finder" or "env".
type Factory func(subsystem string) Log

// logrusLog is a Log implementation backed by logrus.
type logrusLog struct {
	*logrus.Entry
}

func (l *logrusLog) WithField(name string, value interface{}) Log {
	return &logrusLog{Entry: l.Entry.WithFields(logrus.Fields{name: value})}
}

func (l *logrusLog) WithFields(fields Fields) Log {
	return &logrusLog{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

// NewFactory returns a Factory that logs to stdout, using a human-readable
// formatter when stdout is a terminal and JSON otherwise.
func NewFactory(registry *Registry) Factory {
	return func(subsystem string) Log {
		log := logrus.New()
		log.SetLevel(registry.LevelFor(subsystem))
		log.SetOutput(os.Stdout)
		if isatty.IsTerminal(os.Stdout.Fd()) {
			log.SetFormatter(&logrus.TextFormatter{
				TimestampFormat: "2006-01-02 15:04:05",
				FullTimestamp:   true,
				DisableQuote:    true,
			})
		} else {
			log.SetFormatter(&logrus.JSONFormatter{
				TimestampFormat: "2006-01-02 15:04:05",
			})
		}
		entry := log.WithFields(logrus.Fields{"system": subsystem})
		registry.register(subsystem, log)
		return &logrusLog{Entry: entry}
	}
}

// NewFileFactory returns a Factory that logs to the given file path, plain
// text with timestamps, no TTY detection.
func NewFileFactory(registry *Registry, path string) (Factory, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening log file %s", path)
	}
	return func(subsystem string) Log {
		log := logrus.New()
		log.SetLevel(registry.LevelFor(subsystem))
		log.SetOutput(file)
		log.SetFormatter(&logrus.TextFormatter{TimestampFormat: "2006-01-02 15:04:05", FullTimestamp: true})
		entry := log.WithFields(logrus.Fields{"system": subsystem})
		registry.register(subsystem, log)
		return &logrusLog{Entry: entry}
	}, nil
}

// NoOp implements Log without doing anything; used in tests and library
// callers that don't want log output.
type NoOp struct{}

func NewNoOp() *NoOp { return &NoOp{} }

func NoOpFactory(subsystem string) Log { return NewNoOp() }

func (l *NoOp) WithField(name string, value interface{}) Log { return l }
func (l *NoOp) WithFields(fields Fields) Log                 { return l }
func (l *NoOp) Trace(args ...interface{})                    {}
func (l *NoOp) Tracef(msg string, args ...interface{})       {}
func (l *NoOp) Debug(args ...interface{})                    {}
func (l *NoOp) Debugf(msg string, args ...interface{})       {}
func (l *NoOp) Info(args ...interface{})                     {}
func (l *NoOp) Infof(msg string, args ...interface{})        {}
func (l *NoOp) Warn(args ...interface{})                     {}
func (l *NoOp) Warnf(msg string, args ...interface{})        {}
func (l *NoOp) Error(args ...interface{})                    {}
func (l *NoOp) Errorf(msg string, args ...interface{})       {}
func (l *NoOp) Fatal(args ...interface{})                    {}
func (l *NoOp) Fatalf(msg string, args ...interface{})       {}
func (l *NoOp) Panic(args ...interface{})                    {}
func (l *NoOp) Panicf(msg string, args ...interface{})       {}
func (l *NoOp) Print(args ...interface{})                    {}
