package audio

import (
	"fmt"
)

// Format is the native layout a capture session delivers. It is fixed once
// the stream is opened.
type Format struct {
	SampleRate int
	Channels   int
}

// Validate rejects layouts the resampler stage cannot downmix.
func (f Format) Validate() error {
	if f.Channels != 1 && f.Channels != 2 {
		return &ConfigurationError{
			Field:  "channels",
			Value:  f.Channels,
			Reason: "only mono and stereo input are supported",
		}
	}
	if f.SampleRate <= 0 {
		return &ConfigurationError{
			Field:  "sample_rate",
			Value:  f.SampleRate,
			Reason: "sample rate must be positive",
		}
	}
	return nil
}

func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Source is a running capture: raw interleaved blocks come out of Frames in
// the order the hardware delivered them, and device faults come out of Errors.
// Frames is closed by Close once the hardware can no longer call back.
type Source interface {
	Format() Format
	Frames() <-chan []float32
	Errors() <-chan error
	// Drops fires (coalesced) whenever a block was dropped because the relay was full.
	Drops() <-chan struct{}
	Dropped() uint64
	Resume() error
	Pause() error
	Close() error
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	ID          string
	Name        string
	Channels    int
	DefaultRate float64
	Default     bool
}
