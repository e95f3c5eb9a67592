package pipeline

import (
	"errors"
	"fmt"
)

// ErrDispatchBackpressure means a finished session could not be handed to the
// transcriber within the dispatch timeout and was dropped.
var ErrDispatchBackpressure = errors.New("transcription dispatch full")

// Error is a fatal pipeline failure, tagged with the stage that failed.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
