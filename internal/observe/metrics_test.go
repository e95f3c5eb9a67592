package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumByAttr(t *testing.T, met *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", met.Name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestRecordFlushCountsByOutcome(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFlush(ctx, OutcomeDispatched, 1.5)
	m.RecordFlush(ctx, OutcomeDispatched, 3)
	m.RecordFlush(ctx, OutcomeEmpty, 0)
	m.RecordFlush(ctx, OutcomeDropped, 2)

	rm := collect(t, reader)
	met := findMetric(rm, "lfs_stt.session.flushes")
	if met == nil {
		t.Fatal("flush counter not found")
	}
	if got := sumByAttr(t, met, "outcome", OutcomeDispatched); got != 2 {
		t.Errorf("dispatched = %d, want 2", got)
	}
	if got := sumByAttr(t, met, "outcome", OutcomeEmpty); got != 1 {
		t.Errorf("empty = %d, want 1", got)
	}
	if got := sumByAttr(t, met, "outcome", OutcomeDropped); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}

	hist := findMetric(rm, "lfs_stt.session.duration")
	if hist == nil {
		t.Fatal("session duration histogram not found")
	}
	h, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok || len(h.DataPoints) == 0 {
		t.Fatal("session duration has no data points")
	}
	// Only dispatched sessions are measured.
	if h.DataPoints[0].Count != 2 {
		t.Errorf("duration samples = %d, want 2", h.DataPoints[0].Count)
	}
}

func TestRecordingGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.Recording.Add(ctx, 1)
	m.Recording.Add(ctx, -1)
	m.Recording.Add(ctx, 1)

	met := findMetric(collect(t, reader), "lfs_stt.recording")
	if met == nil {
		t.Fatal("recording gauge not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatal("recording gauge has unexpected shape")
	}
	if sum.DataPoints[0].Value != 1 {
		t.Errorf("recording = %d, want 1", sum.DataPoints[0].Value)
	}
}

func TestCaptureErrorsByOp(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCaptureError(ctx, "read")
	m.RecordCaptureError(ctx, "read")
	m.RecordCaptureError(ctx, "start")

	met := findMetric(collect(t, reader), "lfs_stt.capture.errors")
	if met == nil {
		t.Fatal("capture error counter not found")
	}
	if got := sumByAttr(t, met, "op", "read"); got != 2 {
		t.Errorf("read errors = %d, want 2", got)
	}
}

func TestHandlerServesHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	for _, path := range []string{"/health", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: status %d", path, resp.StatusCode)
		}
	}
}

func TestDefaultMetricsIsShared(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Fatal("expected DefaultMetrics to return the same instance")
	}
}
