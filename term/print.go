package term

import (
	"io"
	"strings"
	"sync/atomic"

	"github.com/pterm/pterm"
)

type Level int32

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var lvl atomic.Int32

func init() {
	lvl.Store(int32(LevelInfo))
}

func SetLevel(level Level) {
	lvl.Store(int32(level))
}

func GetLevel() Level {
	return Level(lvl.Load())
}

// ParseLevel accepts the same names as the log_level configuration
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return LevelInfo
}

// SetOutput redirects every message, table included
func SetOutput(w io.Writer) {
	pterm.SetDefaultOutput(w)
}

func enabled(level Level) bool {
	return GetLevel() <= level
}

func Debug(a ...any) {
	if !enabled(LevelDebug) {
		return
	}
	pterm.FgLightCyan.Println(a...)
}

func Debugf(format string, a ...any) {
	if !enabled(LevelDebug) {
		return
	}
	pterm.FgLightCyan.Printfln(format, a...)
}

func Info(a ...any) {
	if !enabled(LevelInfo) {
		return
	}
	pterm.FgLightGreen.Println(a...)
}

func Infof(format string, a ...any) {
	if !enabled(LevelInfo) {
		return
	}
	pterm.FgLightGreen.Printfln(format, a...)
}

func Warn(a ...any) {
	if !enabled(LevelWarn) {
		return
	}
	pterm.FgYellow.Println(a...)
}

func Warnf(format string, a ...any) {
	if !enabled(LevelWarn) {
		return
	}
	pterm.FgYellow.Printfln(format, a...)
}

func Error(a ...any) {
	pterm.FgLightRed.Println(a...)
}

func Errorf(format string, a ...any) {
	pterm.FgLightRed.Printfln(format, a...)
}

// Print writes the result of a command. It is never filtered by level.
func Print(a ...any) {
	pterm.Println(a...)
}

func Printf(format string, a ...any) {
	pterm.Printfln(format, a...)
}
