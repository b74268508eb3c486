package util

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is a logrus level name such as "debug" or "info".
	Level string `json:"level" yaml:"level"`
	// Format is "text" or "json".
	Format string `json:"format" yaml:"format"`
}

// DefaultLogConfig returns info level text logging.
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "text"}
}

// NewLogger creates a logger writing to out, stderr when nil.
//
// Arguments:
//   - cfg: The level and format.
//   - out: The destination.
//
// Returns:
//   - *logrus.Logger: The logger.
//   - error: An error for an unknown level or format.
func NewLogger(cfg LogConfig, out io.Writer) (*logrus.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	log := logrus.New()
	log.SetOutput(out)

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, errors.Wrap(err, "invalid log level")
		}
		level = parsed
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Errorf("invalid log format %q", cfg.Format)
	}
	return log, nil
}
