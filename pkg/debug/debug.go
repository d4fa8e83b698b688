// Package debug builds the process logger and the hooks that stamp time and caller
// information onto every record.
package debug

import (
	"fmt"
	"io"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

const modulePrefix = "github.com/walteh/msbuildls/"

// NewLogger returns a logger writing to w. Console output is human readable; with
// console false every record is one JSON object, which is what log forwarding expects.
func NewLogger(w io.Writer, level zerolog.Level, console, colorize bool) zerolog.Logger {
	out := w
	if console {
		out = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    !colorize,
			TimeFormat: time.TimeOnly,
		}
	}

	return zerolog.New(out).
		Level(level).
		Hook(CustomTimeHook{WithColor: colorize}).
		Hook(CustomCallerHook{WithColor: colorize})
}

func hackGetCallerSkipFrameCount(e *zerolog.Event) int {
	// skipFrame is unexported; reading it through reflect is allowed
	v := reflect.ValueOf(e).Elem()
	field := v.FieldByName("skipFrame")
	if field.IsValid() {
		return int(field.Int())
	}
	return 0
}

type CustomTimeHook struct {
	WithColor bool
	Format    string
}

func (t CustomTimeHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	format := t.Format
	if format == "" {
		// millisecond precision, no zone
		format = "2006-01-02T15:04:05.0000Z"
	}
	e.Str("time", time.Now().Format(format))
}

type CustomCallerHook struct {
	WithColor bool
}

func (c CustomCallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	pc, file, line, ok := runtime.Caller(hackGetCallerSkipFrameCount(e) + 3)
	if !ok {
		return
	}

	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return
	}

	pkg, _ := GetPackageAndFuncFromFuncName(fn.Name())
	e.Str("caller", FormatCaller(pkg, file, line, c.WithColor))
}

// GetPackageAndFuncFromFuncName splits a runtime function name such as
// "github.com/walteh/msbuildls/pkg/document.(*Document).Update" into its package,
// relative to this module, and its function.
func GetPackageAndFuncFromFuncName(name string) (pkg, function string) {
	lastSlash := strings.LastIndexByte(name, '/')
	if lastSlash < 0 {
		lastSlash = 0
	}

	firstDot := strings.IndexByte(name[lastSlash:], '.')
	if firstDot < 0 {
		return strings.TrimPrefix(name, modulePrefix), ""
	}
	firstDot += lastSlash

	pkg = name[:firstDot]
	function = name[firstDot+1:]

	return strings.TrimPrefix(pkg, modulePrefix), function
}

func FormatCaller(pkg, path string, line int, colorize bool) string {
	file := FileNameOfPath(path)
	if colorize {
		file = color.New(color.Bold).Sprint(file)
		num := color.New(color.FgHiRed, color.Bold).Sprintf("%d", line)
		sep := color.New(color.Faint).Sprint(":")
		return fmt.Sprintf("%s%s%s%s%s", pkg, sep, file, sep, num)
	}
	return fmt.Sprintf("%s:%s:%d", pkg, file, line)
}

func FileNameOfPath(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
