//go:build linux

package logger

import (
	"log/syslog"

	"github.com/sirupsen/logrus"
)

// syslogHook forwards logrus entries to the local syslog daemon. It's
// deliberately minimal: power profile changes are low-volume events,
// so there's no need for the batching or buffering a busier service
// would want.
type syslogHook struct {
	writer *syslog.Writer
}

func (h *syslogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *syslogHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}

	switch entry.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return h.writer.Err(line)
	case logrus.WarnLevel:
		return h.writer.Warning(line)
	case logrus.DebugLevel, logrus.TraceLevel:
		return h.writer.Debug(line)
	default:
		return h.writer.Info(line)
	}
}

func setupSyslog(logger *logrus.Logger, syslogName string) error {
	w, err := syslog.New(syslog.LOG_DAEMON, syslogName)
	if err != nil {
		return err
	}

	logger.AddHook(&syslogHook{writer: w})

	return nil
}
