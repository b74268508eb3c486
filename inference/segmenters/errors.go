package segmenters

import (
	"fmt"

	"github.com/pkg/errors"
)

// Reason classifies why segmentation is unavailable.
type Reason int

const (
	// ReasonNotConfigured means no segmentation model was configured.
	ReasonNotConfigured Reason = iota
	// ReasonNotInstalled means the inference runtime is not installed.
	ReasonNotInstalled
	// ReasonWeightsNotFound means the configured model file does not exist.
	ReasonWeightsNotFound
)

func (r Reason) String() string {
	switch r {
	case ReasonNotInstalled:
		return "not installed"
	case ReasonWeightsNotFound:
		return "weights not found"
	default:
		return "not configured"
	}
}

var (
	// ErrNotConfigured matches a ConfigurationError with ReasonNotConfigured.
	ErrNotConfigured = errors.New("segmentation not configured")
	// ErrNotInstalled matches a ConfigurationError with ReasonNotInstalled.
	ErrNotInstalled = errors.New("segmentation runtime not installed")
	// ErrWeightsNotFound matches a ConfigurationError with ReasonWeightsNotFound.
	ErrWeightsNotFound = errors.New("segmentation weights not found")
)

// ConfigurationError reports that segmentation was requested but the
// segmenter could not be initialized.
type ConfigurationError struct {
	// Component names the missing piece, e.g. the model or runtime library.
	Component string
	// Reason classifies the failure.
	Reason Reason
	// Path is the file that was looked for, if any.
	Path string
	// Err is the underlying error, if any.
	Err error
}

func (e *ConfigurationError) Error() string {
	var msg string
	switch e.Reason {
	case ReasonNotInstalled:
		msg = fmt.Sprintf("%s is not installed", e.Component)
		if e.Path != "" {
			msg += fmt.Sprintf(": no library at %s", e.Path)
		}
	case ReasonWeightsNotFound:
		msg = fmt.Sprintf("%s weights not found", e.Component)
		if e.Path != "" {
			msg += fmt.Sprintf(" at %s", e.Path)
		}
	default:
		msg = fmt.Sprintf("%s is not configured", e.Component)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's reason.
func (e *ConfigurationError) Is(target error) bool {
	switch e.Reason {
	case ReasonNotInstalled:
		return target == ErrNotInstalled
	case ReasonWeightsNotFound:
		return target == ErrWeightsNotFound
	default:
		return target == ErrNotConfigured
	}
}
