package util

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Debug gates DPrintf: messages with level <= Debug are emitted.
var Debug uint64 = 0

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	return l
}

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		logger.Debugf(format, a...)
	}
}

func RoundUp(n uint32, sz uint32) uint32 {
	return (n + sz - 1) / sz
}

func Min(n uint32, m uint32) uint32 {
	if n < m {
		return n
	} else {
		return m
	}
}
