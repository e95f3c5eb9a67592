package pipeline

import (
	"time"

	"github.com/petems/lfs-stt/internal/resample"
)

// Session is the 16 kHz mono audio captured between one Begin and the
// following End. The receiver owns Samples.
type Session struct {
	ID      uint64
	Samples []float32
}

// Duration is the audio length of the session.
func (s Session) Duration() time.Duration {
	return time.Duration(len(s.Samples)) * time.Second / resample.TargetRate
}
