// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds a logger with the given level ("debug", "info", "warn", "error")
// and format ("text" or "json"). Unknown levels fall back to info.
func New(level, format string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	if out == nil {
		out = os.Stdout
	}
	logger.SetOutput(out)

	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

// Discard returns a logger that drops everything, for callers that need a
// non-nil logger but no output.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

const redacted = "[REDACTED]"

// RedactHook scrubs secret values from log messages and string fields
// before any formatter sees them.
type RedactHook struct {
	secrets []string
}

// NewRedactHook ignores empty secrets so that an unset value never matches.
func NewRedactHook(secrets ...string) *RedactHook {
	h := &RedactHook{}
	for _, s := range secrets {
		if s != "" {
			h.secrets = append(h.secrets, s)
		}
	}
	return h
}

// Levels applies the hook to every level.
func (h *RedactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire masks secrets in the message and in string fields.
func (h *RedactHook) Fire(entry *logrus.Entry) error {
	entry.Message = h.scrub(entry.Message)
	for k, v := range entry.Data {
		switch val := v.(type) {
		case string:
			entry.Data[k] = h.scrub(val)
		case error:
			if s := val.Error(); s != h.scrub(s) {
				entry.Data[k] = h.scrub(s)
			}
		case fmt.Stringer:
			if s := val.String(); s != h.scrub(s) {
				entry.Data[k] = h.scrub(s)
			}
		}
	}
	return nil
}

func (h *RedactHook) scrub(s string) string {
	for _, secret := range h.secrets {
		if strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, redacted)
		}
	}
	return s
}
