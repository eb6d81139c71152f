// Package logger provides the process-wide structured logger.
package logger

import (
	"io"
	stdlog "log"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Logger is the root logger. Components should use For to obtain a prefixed child.
var Logger *log.Logger

func init() {
	Logger = log.New(os.Stderr)
	Logger.SetReportTimestamp(true)
	Logger.SetLevel(log.InfoLevel)
}

// Configure sets level and output format. Unknown levels fall back to info.
func Configure(level, format string) {
	configure(os.Stderr, level, format)
}

func configure(w io.Writer, level, format string) {
	l := log.New(w)
	l.SetReportTimestamp(true)
	l.SetLevel(parseLogLevel(level))
	if strings.EqualFold(format, "json") {
		l.SetFormatter(log.JSONFormatter)
	}
	Logger = l
}

// For returns a child logger tagged with the component name.
func For(component string) *log.Logger {
	return Logger.WithPrefix(component)
}

// Standard bridges to the standard library logger for middleware that expects one.
func Standard() *stdlog.Logger {
	return Logger.StandardLog(log.StandardLogOptions{ForceLevel: log.InfoLevel})
}

func parseLogLevel(level string) log.Level {
	parsed, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return parsed
}
