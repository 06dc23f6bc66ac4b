package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds a logger writing to w (stdout when nil). format is "text" or
// "json"; level is any logrus level name.
func New(level, format string, w io.Writer) (*logrus.Logger, error) {
	if w == nil {
		w = os.Stdout
	}
	l := logrus.New()
	l.SetOutput(w)

	lvl := logrus.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		lvl = parsed
	}
	l.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
