// Package observe holds the OpenTelemetry instruments for the capture and
// transcription pipeline and the Prometheus bridge that exposes them.
//
// Tests should build a private [Metrics] with [NewMetrics] and a ManualReader
// rather than touching [DefaultMetrics].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/petems/lfs-stt"

// Session flush outcomes.
const (
	OutcomeDispatched = "dispatched"
	OutcomeEmpty      = "empty"
	OutcomeDropped    = "dropped"
	OutcomeAborted    = "aborted"
)

// Metrics holds every instrument the application records. The OTel types are
// safe for concurrent use.
type Metrics struct {
	// RelayDrops counts capture blocks dropped because the relay was full.
	RelayDrops metric.Int64Counter

	// CaptureErrors counts faults reported by the capture source.
	CaptureErrors metric.Int64Counter

	ResampledFrames metric.Int64Counter
	ResampleErrors  metric.Int64Counter

	// SessionFlushes counts finished sessions. Use with attribute
	//   attribute.String("outcome", ...)
	SessionFlushes metric.Int64Counter

	// SessionDuration is the audio length of dispatched sessions in seconds.
	SessionDuration metric.Float64Histogram

	TranscriptionDuration metric.Float64Histogram
	TranscriptionErrors   metric.Int64Counter

	// Recording is 1 while a session is open.
	Recording metric.Int64UpDownCounter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32,
}

var sessionBuckets = []float64{
	0.5, 1, 2, 5, 10, 20, 30, 60,
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RelayDrops, err = m.Int64Counter("lfs_stt.relay.drops",
		metric.WithDescription("Capture blocks dropped because the relay was full."),
	); err != nil {
		return nil, err
	}
	if met.CaptureErrors, err = m.Int64Counter("lfs_stt.capture.errors",
		metric.WithDescription("Faults reported by the capture device."),
	); err != nil {
		return nil, err
	}
	if met.ResampledFrames, err = m.Int64Counter("lfs_stt.resample.frames",
		metric.WithDescription("16 kHz frames produced by the resampler."),
	); err != nil {
		return nil, err
	}
	if met.ResampleErrors, err = m.Int64Counter("lfs_stt.resample.errors",
		metric.WithDescription("Fatal resampler errors."),
	); err != nil {
		return nil, err
	}
	if met.SessionFlushes, err = m.Int64Counter("lfs_stt.session.flushes",
		metric.WithDescription("Finished recording sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("lfs_stt.session.duration",
		metric.WithDescription("Audio length of dispatched sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("lfs_stt.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionErrors, err = m.Int64Counter("lfs_stt.transcription.errors",
		metric.WithDescription("Failed transcriptions."),
	); err != nil {
		return nil, err
	}
	if met.Recording, err = m.Int64UpDownCounter("lfs_stt.recording",
		metric.WithDescription("1 while a recording session is open."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built on the global
// provider. It panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFlush counts one finished session and, for dispatched sessions,
// records its length.
func (m *Metrics) RecordFlush(ctx context.Context, outcome string, seconds float64) {
	m.SessionFlushes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	if outcome == OutcomeDispatched {
		m.SessionDuration.Record(ctx, seconds)
	}
}

// RecordCaptureError counts a capture fault by operation.
func (m *Metrics) RecordCaptureError(ctx context.Context, op string) {
	m.CaptureErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
}
