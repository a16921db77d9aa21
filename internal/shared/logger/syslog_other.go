//go:build !linux

package logger

import (
	"errors"

	"github.com/sirupsen/logrus"
)

func setupSyslog(logger *logrus.Logger, syslogName string) error {
	return errors.New("syslog logging isn't supported on this platform")
}
