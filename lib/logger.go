package lib

import (
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Print(a ...any)
	Println(a ...any)
	Printf(format string, a ...any)
}

// verify interface
var _ Logger = &logrus.Logger{}

type NoLog struct{}

func (l *NoLog) Print(a ...any)                 {}
func (l *NoLog) Println(a ...any)               {}
func (l *NoLog) Printf(format string, a ...any) {}

type TestLogger struct {
	t      *testing.T
	prefix string
}

func NewTestLogger(t *testing.T, prefix string) *TestLogger {
	return &TestLogger{
		t:      t,
		prefix: prefix,
	}
}

func (l *TestLogger) Print(a ...any) {
	l.t.Helper()
	if l.prefix == "" {
		l.t.Log(a...)
	} else {
		l.t.Log(append([]any{l.prefix + ":"}, a...)...)
	}
}

func (l *TestLogger) Println(a ...any) {
	l.t.Helper()
	l.Print(a...)
}

func (l *TestLogger) Printf(format string, a ...any) {
	l.t.Helper()
	if l.prefix != "" {
		format = l.prefix + ": " + format
	}
	l.t.Logf(format, a...)
}

// PrefixFormatter adds a component prefix in front of each logrus line
type PrefixFormatter struct {
	formatter logrus.Formatter
	prefix    []byte
}

func NewPrefixFormatter(prefix string) *PrefixFormatter {
	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
		DisableColors:   strings.Contains(runtime.GOOS, "windows"),
	}
	return &PrefixFormatter{
		formatter: formatter,
		prefix:    []byte(fmt.Sprintf("%s:\t", prefix)),
	}
}

func (f *PrefixFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	text, err := f.formatter.Format(entry)
	if err != nil {
		return nil, err
	}
	return append(f.prefix, text...), nil
}

// NewLogger returns a logrus logger for one component (imap, smtp, oauth...)
func NewLogger(prefix, level string) *logrus.Logger {
	logger := logrus.New()
	logger.Level = ParseLevel(level)
	logger.Formatter = NewPrefixFormatter(prefix)
	return logger
}

func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	}
	return logrus.InfoLevel
}
