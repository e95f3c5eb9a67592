package audio

import (
	"errors"
	"fmt"
)

// ErrNoDevice is wrapped by a ConfigurationError when no usable input device exists.
var ErrNoDevice = errors.New("no input device")

// ConfigurationError reports a capture setup the pipeline cannot run with.
// It is returned before any frame is produced.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "audio configuration"
	if e.Field != "" {
		msg += fmt.Sprintf(": %s=%v", e.Field, e.Value)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// CaptureError is a device fault observed while streaming. It is delivered on
// Source.Errors and never unwinds through the hardware callback.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("audio capture %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }
