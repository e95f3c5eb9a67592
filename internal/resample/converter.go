// Package resample converts native-rate mono audio to the 16 kHz stream the
// transcriber expects.
//
// The Converter works on fixed chunks: every call consumes exactly
// InputFramesNext frames and produces exactly OutputFramesNext frames. The
// Stage owns a Converter plus the carry of not-yet-chunked input and is what
// the pipeline runs.
package resample

import (
	"errors"
	"fmt"
	"math"
)

// TargetRate is the canonical output rate.
const TargetRate = 16000

// DefaultChunkFrames is the nominal input chunk size; the real size is the
// nearest multiple of the reduced rate ratio.
const DefaultChunkFrames = 1024

// maxChunkFactor bounds the exact chunk relative to the nominal one. Rates
// whose reduced ratio would need a longer chunk are converted with the ratio
// rounded to the nominal chunk instead.
const maxChunkFactor = 2

// halfTaps is the sinc half-width in input frames. It is also the converter's
// start-up delay.
const halfTaps = 16

var (
	ErrShortInput  = errors.New("input shorter than the next chunk")
	ErrShortOutput = errors.New("output buffer shorter than the next chunk")
)

// Error is a converter invariant violation. The converter cannot be trusted
// afterwards, so the pipeline treats it as fatal.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resample %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Converter is a stateful fixed-chunk sample rate converter. It keeps the tail
// of the previous chunk as filter history and is not safe for concurrent use.
type Converter struct {
	inRate   int
	outRate  int
	chunkIn  int
	chunkOut int

	passthrough bool

	// per output index j: first history index and its weights
	start   []int
	weights [][]float32

	hist []float32 // last 2*halfTaps input frames
	ext  []float32 // hist followed by the current chunk
}

// NewConverter prepares a converter from inRate to outRate using input chunks
// close to nominalChunk frames.
func NewConverter(inRate, outRate, nominalChunk int) (*Converter, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, &Error{Op: "init", Err: fmt.Errorf("invalid rates %d -> %d", inRate, outRate)}
	}
	if nominalChunk <= 0 {
		nominalChunk = DefaultChunkFrames
	}

	c := &Converter{inRate: inRate, outRate: outRate}

	if inRate == outRate {
		c.passthrough = true
		c.chunkIn = nominalChunk
		c.chunkOut = nominalChunk
		return c, nil
	}

	g := gcd(inRate, outRate)
	inUnit, outUnit := inRate/g, outRate/g
	k := int(math.Round(float64(nominalChunk) / float64(inUnit)))
	if k < 1 {
		k = 1
	}
	if k*inUnit > maxChunkFactor*nominalChunk {
		// e.g. 44101 Hz: gcd 1 would mean a one-second chunk. Rounding the
		// output count shifts the rate by under 1/(2*chunkOut).
		inUnit = nominalChunk
		outUnit = max(1, int(math.Round(float64(nominalChunk)*float64(outRate)/float64(inRate))))
		k = 1
	}
	c.chunkIn = k * inUnit
	c.chunkOut = k * outUnit

	cutoff := math.Min(1, float64(outRate)/float64(inRate))
	c.start = make([]int, c.chunkOut)
	c.weights = make([][]float32, c.chunkOut)
	for j := range c.chunkOut {
		q := (j * inUnit) / outUnit
		frac := float64((j*inUnit)%outUnit) / float64(outUnit)
		center := halfTaps + q
		first := center - halfTaps + 1

		w := make([]float32, 2*halfTaps)
		var sum float64
		raw := make([]float64, 2*halfTaps)
		for t := range raw {
			x := float64(center-(first+t)) + frac
			raw[t] = kernel(x, cutoff)
			sum += raw[t]
		}
		for t := range raw {
			w[t] = float32(raw[t] / sum)
		}
		c.start[j] = first
		c.weights[j] = w
	}

	c.hist = make([]float32, 2*halfTaps)
	c.ext = make([]float32, 2*halfTaps+c.chunkIn)
	return c, nil
}

// kernel is a Hann-windowed sinc low-pass sampled at offset x input frames.
func kernel(x, cutoff float64) float64 {
	if math.Abs(x) >= halfTaps {
		return 0
	}
	window := 0.5 * (1 + math.Cos(math.Pi*x/halfTaps))
	u := cutoff * x
	if u == 0 {
		return cutoff * window
	}
	return cutoff * math.Sin(math.Pi*u) / (math.Pi * u) * window
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// InputFramesNext is the exact number of frames the next Process call consumes.
func (c *Converter) InputFramesNext() int { return c.chunkIn }

// OutputFramesNext is the exact number of frames the next Process call writes.
func (c *Converter) OutputFramesNext() int { return c.chunkOut }

// OutputDelay is the fixed start-up latency in output frames.
func (c *Converter) OutputDelay() int {
	if c.passthrough {
		return 0
	}
	return int(math.Round(float64(halfTaps) * float64(c.outRate) / float64(c.inRate)))
}

// Process converts exactly one chunk from in into out.
func (c *Converter) Process(in, out []float32) (read, written int, err error) {
	if len(in) < c.chunkIn {
		return 0, 0, &Error{Op: "process", Err: fmt.Errorf("%w: have %d, need %d", ErrShortInput, len(in), c.chunkIn)}
	}
	if len(out) < c.chunkOut {
		return 0, 0, &Error{Op: "process", Err: fmt.Errorf("%w: have %d, need %d", ErrShortOutput, len(out), c.chunkOut)}
	}

	if c.passthrough {
		copy(out, in[:c.chunkIn])
		return c.chunkIn, c.chunkOut, nil
	}

	n := copy(c.ext, c.hist)
	copy(c.ext[n:], in[:c.chunkIn])

	for j := range c.chunkOut {
		taps := c.ext[c.start[j] : c.start[j]+2*halfTaps]
		var acc float32
		for t, w := range c.weights[j] {
			acc += taps[t] * w
		}
		out[j] = acc
	}

	copy(c.hist, c.ext[c.chunkIn:])
	return c.chunkIn, c.chunkOut, nil
}
