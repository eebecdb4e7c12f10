package perf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vitals-monitor/internal/alert/alerttest"
	"vitals-monitor/internal/models"
	"vitals-monitor/internal/scheduler"
	"vitals-monitor/internal/stream"
)

var epoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func newReporter(cfg Config) (*Reporter, *alerttest.Sink, *scheduler.Fake, *stream.Hub[models.MetricSample]) {
	sink := &alerttest.Sink{}
	f := scheduler.NewFake(epoch)
	hub := stream.NewHub[models.MetricSample](256)
	return NewReporter(cfg, sink, f, hub, zap.NewNop()), sink, f, hub
}

func TestReporter_OneWarningPerTickNotPerSample(t *testing.T) {
	r, sink, _, _ := newReporter(Config{OperationThreshold: 50 * time.Millisecond})
	for i := 0; i < 10; i++ {
		r.Record(models.MetricSample{Name: "db.query", ValueMs: 80})
	}

	rec, raised := r.Tick()
	require.True(t, raised)
	assert.Equal(t, 1, sink.Len())
	assert.Equal(t, models.SeverityWarning, rec.Severity)
	assert.Equal(t, SystemPatientID, rec.PatientID)
	assert.Contains(t, rec.Message, "db.query")
	assert.False(t, sink.Calls()[0].Critical)
}

func TestReporter_BreachesAreCombined(t *testing.T) {
	r, sink, _, _ := newReporter(Config{OperationThreshold: 50 * time.Millisecond})
	r.Record(models.MetricSample{Name: "a", ValueMs: 60})
	r.Record(models.MetricSample{Name: "b", ValueMs: 70})
	for i := 0; i < 10; i++ {
		r.RecordFrame(40 * time.Millisecond)
	}

	rec, raised := r.Tick()
	require.True(t, raised)
	assert.Equal(t, 1, sink.Len())
	assert.Contains(t, rec.Message, "jank")
	assert.Contains(t, rec.Message, "a average")
	assert.Contains(t, rec.Message, "b average")
}

func TestReporter_BelowThresholdIsQuiet(t *testing.T) {
	r, sink, _, _ := newReporter(Config{OperationThreshold: 50 * time.Millisecond})
	for i := 0; i < 10; i++ {
		r.Record(models.MetricSample{Name: "db.query", ValueMs: 20})
	}
	_, raised := r.Tick()
	assert.False(t, raised)
	assert.Equal(t, 0, sink.Len())
}

func TestReporter_JankThreshold(t *testing.T) {
	r, _, _, _ := newReporter(Config{})
	for i := 0; i < 95; i++ {
		r.RecordFrame(10 * time.Millisecond)
	}
	for i := 0; i < 5; i++ {
		r.RecordFrame(30 * time.Millisecond)
	}
	pct, frames := r.JankPercent()
	assert.Equal(t, 100, frames)
	assert.InDelta(t, 5.0, pct, 1e-9)
	_, raised := r.Tick()
	assert.False(t, raised, "exactly the limit is not a breach")

	r.RecordFrame(30 * time.Millisecond)
	_, raised = r.Tick()
	assert.True(t, raised)
}

func TestReporter_RollingWindowKeepsLastSamples(t *testing.T) {
	r, _, _, _ := newReporter(Config{})
	for i := 0; i < 150; i++ {
		r.Record(models.MetricSample{Name: "op", ValueMs: float64(i)})
	}
	aggs := r.Aggregates()
	require.Len(t, aggs, 1)
	assert.Equal(t, 100, aggs[0].Count)
	// Samples 50..149 remain.
	assert.InDelta(t, 99.5, aggs[0].Average, 1e-9)
	assert.InDelta(t, 9950, aggs[0].Sum, 1e-9)
}

func TestReporter_StartStop(t *testing.T) {
	r, sink, f, hub := newReporter(Config{OperationThreshold: 10 * time.Millisecond})
	r.Start()
	r.Start()
	require.True(t, r.Running())
	assert.Equal(t, 1, hub.Subscribers(TimingKey))

	for i := 0; i < 10; i++ {
		hub.Publish(TimingKey, models.MetricSample{Name: "session.process", ValueMs: 25})
	}
	require.Eventually(t, func() bool {
		aggs := r.Aggregates()
		return len(aggs) == 1 && aggs[0].Count == 10
	}, time.Second, 5*time.Millisecond)

	f.Advance(29 * time.Second)
	assert.Equal(t, 0, sink.Len())
	f.Advance(time.Second)
	assert.Equal(t, 1, sink.Len())
	f.Advance(30 * time.Second)
	assert.Equal(t, 2, sink.Len())

	r.Stop()
	r.Stop()
	assert.False(t, r.Running())
	assert.Equal(t, 0, hub.Subscribers(TimingKey))
	assert.Equal(t, 0, f.Pending())
	f.Advance(time.Hour)
	assert.Equal(t, 2, sink.Len())
}

func TestReporter_OptimizeIsIdempotent(t *testing.T) {
	r, _, f, _ := newReporter(Config{Interval: time.Second, StaleAfter: time.Minute})
	cache := 3
	r.AddTrimmer("cache", func() int {
		n := cache
		cache = 0
		return n
	})

	r.Record(models.MetricSample{Name: "old", ValueMs: 1})
	f.Advance(2 * time.Minute)
	r.Record(models.MetricSample{Name: "fresh", ValueMs: 1})

	assert.Equal(t, 4, r.Optimize())
	assert.Equal(t, 0, r.Optimize())
	assert.Equal(t, 0, r.Optimize())
	aggs := r.Aggregates()
	require.Len(t, aggs, 1)
	assert.Equal(t, "fresh", aggs[0].Name)
}
