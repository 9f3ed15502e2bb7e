package observability

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logrus.Logger writing structured text to stderr at
// level (parsed with logrus.ParseLevel; an unparsable level falls back to
// info).
func NewLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return l
}
