// Package logger provides the package-level structured logger used
// throughout powerprofilesd, in the same call-site shape as the
// teacher daemon this project was grown from: level functions taking
// an optional logger.Ctx of structured fields, plus printf-style
// variants for the many call sites that don't need them.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

// Ctx is a set of structured fields attached to a single log entry.
type Ctx map[string]any

var log = newDefaultLogger()

func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(colorable.NewColorableStdout())
	l.SetLevel(logrus.InfoLevel)

	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		DisableColors:   os.Getenv("NO_COLOR") != "",
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	l.SetFormatter(formatter)

	if debugFromEnv() {
		l.SetLevel(logrus.DebugLevel)
	}

	return l
}

// debugFromEnv reports whether G_MESSAGES_DEBUG requests debug-level
// logging, matching the legacy GLib environment variable the original
// daemon honored.
func debugFromEnv() bool {
	v := os.Getenv("G_MESSAGES_DEBUG")
	if v == "" {
		return false
	}

	return v == "all" || strings.Contains(v, "all")
}

// InitLogger applies the effective log level. verbose corresponds to
// the --verbose command-line flag (spec §6) and, like
// G_MESSAGES_DEBUG, lowers the threshold to debug.
func InitLogger(verbose bool) {
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := setupSyslog(log, "powerprofilesd"); err != nil {
		// Syslog is a nice-to-have; console logging still works.
		log.Debugf("Syslog logging unavailable: %v", err)
	}
}

// SetOutput redirects the logger, primarily for tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func fields(ctx []Ctx) logrus.Fields {
	if len(ctx) == 0 {
		return nil
	}

	f := logrus.Fields{}
	for _, c := range ctx {
		for k, v := range c {
			f[k] = v
		}
	}

	return f
}

// Debug logs msg at debug level with optional structured context.
func Debug(msg string, ctx ...Ctx) {
	log.WithFields(fields(ctx)).Debug(msg)
}

// Info logs msg at info level with optional structured context.
func Info(msg string, ctx ...Ctx) {
	log.WithFields(fields(ctx)).Info(msg)
}

// Warn logs msg at warn level with optional structured context.
func Warn(msg string, ctx ...Ctx) {
	log.WithFields(fields(ctx)).Warn(msg)
}

// Error logs msg at error level with optional structured context.
func Error(msg string, ctx ...Ctx) {
	log.WithFields(fields(ctx)).Error(msg)
}

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) {
	log.Debug(fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) {
	log.Info(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) {
	log.Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) {
	log.Error(fmt.Sprintf(format, args...))
}
