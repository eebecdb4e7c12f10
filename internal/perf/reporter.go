// Package perf keeps rolling aggregates of named timing samples and raises a
// system-health warning when they cross fixed thresholds.
package perf

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vitals-monitor/internal/alert"
	"vitals-monitor/internal/metrics"
	"vitals-monitor/internal/models"
	"vitals-monitor/internal/scheduler"
	"vitals-monitor/internal/stream"
)

const (
	// TimingKey is the hub key timing samples are published under.
	TimingKey = "timings"
	// FrameMetric samples are frame durations; they feed the jank rule only.
	FrameMetric = "frame"
	// SystemPatientID is the patient id carried by performance warnings.
	SystemPatientID = "system"

	DefaultInterval           = 30 * time.Second
	DefaultMaxSamples         = 100
	DefaultFrameBudget        = 16 * time.Millisecond
	DefaultJankPercent        = 5.0
	DefaultOperationThreshold = 100 * time.Millisecond
)

type Config struct {
	Interval           time.Duration
	MaxSamples         int
	FrameBudget        time.Duration
	JankPercent        float64
	OperationThreshold time.Duration
	// StaleAfter is how long a series may go without samples before Optimize
	// drops it. Zero means ten intervals.
	StaleAfter       time.Duration
	OptimizeOnBreach bool
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = DefaultMaxSamples
	}
	if c.FrameBudget <= 0 {
		c.FrameBudget = DefaultFrameBudget
	}
	if c.JankPercent <= 0 {
		c.JankPercent = DefaultJankPercent
	}
	if c.OperationThreshold <= 0 {
		c.OperationThreshold = DefaultOperationThreshold
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * c.Interval
	}
	return c
}

type Aggregate struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Sum     float64 `json:"sum"`
	Average float64 `json:"average"`
}

type series struct {
	values  []float64
	updated time.Time
}

// Trimmer releases cached state and reports how many entries it removed.
type Trimmer func() int

type namedTrimmer struct {
	name string
	fn   Trimmer
}

type Reporter struct {
	cfg     Config
	sink    alert.Sink
	sched   scheduler.Scheduler
	timings *stream.Hub[models.MetricSample]
	logger  *zap.Logger

	mu       sync.Mutex
	series   map[string]*series
	trimmers []namedTrimmer

	runMu sync.Mutex
	tick  scheduler.Handle
	sub   *stream.Subscription[models.MetricSample]
	done  chan struct{}
}

// NewReporter builds a stopped reporter. timings may be nil, in which case
// samples only arrive through Record.
func NewReporter(cfg Config, sink alert.Sink, sched scheduler.Scheduler, timings *stream.Hub[models.MetricSample], logger *zap.Logger) *Reporter {
	if sched == nil {
		sched = scheduler.New()
	}
	return &Reporter{
		cfg:     cfg.withDefaults(),
		sink:    sink,
		sched:   sched,
		timings: timings,
		logger:  logger,
		series:  make(map[string]*series),
	}
}

func (r *Reporter) AddTrimmer(name string, fn Trimmer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trimmers = append(r.trimmers, namedTrimmer{name: name, fn: fn})
}

// Record adds a sample, discarding the oldest once a name holds MaxSamples.
func (r *Reporter) Record(s models.MetricSample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ser, ok := r.series[s.Name]
	if !ok {
		ser = &series{values: make([]float64, 0, r.cfg.MaxSamples)}
		r.series[s.Name] = ser
	}
	if len(ser.values) >= r.cfg.MaxSamples {
		ser.values = ser.values[1:]
	}
	ser.values = append(ser.values, s.ValueMs)
	ser.updated = r.sched.Now()
}

func (r *Reporter) RecordFrame(d time.Duration) {
	r.Record(models.MetricSample{Name: FrameMetric, ValueMs: durationMs(d), Timestamp: r.sched.Now()})
}

// Aggregates are sorted by name.
func (r *Reporter) Aggregates() []Aggregate {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Aggregate, 0, len(r.series))
	for name, ser := range r.series {
		out = append(out, aggregate(name, ser.values))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func aggregate(name string, values []float64) Aggregate {
	a := Aggregate{Name: name, Count: len(values)}
	for _, v := range values {
		a.Sum += v
	}
	if a.Count > 0 {
		a.Average = a.Sum / float64(a.Count)
	}
	return a
}

// JankPercent is the share of recorded frames over the frame budget.
func (r *Reporter) JankPercent() (percent float64, frames int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ser, ok := r.series[FrameMetric]
	if !ok || len(ser.values) == 0 {
		return 0, 0
	}
	budget := durationMs(r.cfg.FrameBudget)
	janky := 0
	for _, v := range ser.values {
		if v > budget {
			janky++
		}
	}
	return 100 * float64(janky) / float64(len(ser.values)), len(ser.values)
}

// Tick evaluates the thresholds once. All breaches of one tick are combined
// into a single warning.
func (r *Reporter) Tick() (models.AlertRecord, bool) {
	var breaches []string

	if jank, frames := r.JankPercent(); frames > 0 && jank > r.cfg.JankPercent {
		breaches = append(breaches, fmt.Sprintf("jank %.1f%% of %d frames exceeds %.1f%%", jank, frames, r.cfg.JankPercent))
	}
	limit := durationMs(r.cfg.OperationThreshold)
	for _, a := range r.Aggregates() {
		metrics.PerfAverage.WithLabelValues(a.Name).Set(a.Average)
		if a.Name == FrameMetric {
			continue
		}
		if a.Average > limit {
			breaches = append(breaches, fmt.Sprintf("%s average %.1fms over %d samples exceeds %.1fms", a.Name, a.Average, a.Count, limit))
		}
	}
	if len(breaches) == 0 {
		return models.AlertRecord{}, false
	}

	rec := models.AlertRecord{
		ID:        uuid.New().String(),
		PatientID: SystemPatientID,
		Title:     "System performance degraded",
		Message:   strings.Join(breaches, "; "),
		Severity:  models.SeverityWarning,
		Key:       "perf",
		CreatedAt: r.sched.Now(),
	}
	metrics.PerfWarnings.Inc()
	r.logger.Warn("Performance threshold breached", zap.Strings("breaches", breaches))

	if res := r.sink.SendAlert(context.Background(), rec); res.IsError() {
		r.logger.Error("Performance warning delivery failed", zap.String("error", res.ErrorMessage()))
	}
	if r.cfg.OptimizeOnBreach {
		r.Optimize()
	}
	return rec, true
}

// Optimize drops series that stopped receiving samples and runs the
// registered trimmers. Calling it again with nothing to release is a no-op.
func (r *Reporter) Optimize() int {
	now := r.sched.Now()

	r.mu.Lock()
	removed := 0
	for name, ser := range r.series {
		if now.Sub(ser.updated) > r.cfg.StaleAfter {
			delete(r.series, name)
			removed++
		}
	}
	trimmers := append([]namedTrimmer(nil), r.trimmers...)
	r.mu.Unlock()

	for _, t := range trimmers {
		n := t.fn()
		if n > 0 {
			r.logger.Info("Trimmed cached state", zap.String("trimmer", t.name), zap.Int("removed", n))
		}
		removed += n
	}
	return removed
}

// Start begins the interval tick and the timing subscription. Calling it on
// a running reporter does nothing.
func (r *Reporter) Start() {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.tick != nil {
		return
	}
	if r.timings != nil {
		r.sub = r.timings.Subscribe(TimingKey)
		r.done = make(chan struct{})
		go r.consume(r.sub, r.done)
	}
	r.tick = r.sched.Every(r.cfg.Interval, func() { r.Tick() })
	r.logger.Info("Performance reporter started", zap.Duration("interval", r.cfg.Interval))
}

func (r *Reporter) consume(sub *stream.Subscription[models.MetricSample], done chan struct{}) {
	defer close(done)
	for s := range sub.C() {
		r.Record(s)
	}
}

// Stop cancels the tick and removes the timing subscription before returning.
func (r *Reporter) Stop() {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.tick == nil {
		return
	}
	r.tick.Cancel()
	r.tick = nil
	if r.sub != nil {
		r.sub.Cancel()
		<-r.done
		r.sub = nil
	}
	r.logger.Info("Performance reporter stopped")
}

func (r *Reporter) Running() bool {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.tick != nil
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
