// Package alert turns risk assessments into alert records, de-duplicates them
// against a per-patient window and hands them to a notification sink.
package alert

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vitals-monitor/internal/metrics"
	"vitals-monitor/internal/models"
	"vitals-monitor/internal/outcome"
	"vitals-monitor/internal/risk"
)

const (
	DefaultWindowSize = 100
	DefaultRetention  = 24 * time.Hour
)

var metricTitles = map[models.MetricKind]string{
	models.MetricHeartRate:        "Heart rate",
	models.MetricBloodPressure:    "Blood pressure",
	models.MetricOxygenSaturation: "Oxygen saturation",
	models.MetricTemperature:      "Temperature",
	models.MetricRespiratoryRate:  "Respiratory rate",
	models.MetricGlucose:          "Glucose",
}

type Options struct {
	// Cooldown suppresses an alert whose key was emitted within this long.
	// Zero disables suppression across calls.
	Cooldown   time.Duration
	WindowSize int
	Retention  time.Duration
	Now        func() time.Time
	NewID      func() string
}

type Dispatcher struct {
	sink   Sink
	opts   Options
	logger *zap.Logger
}

func NewDispatcher(sink Sink, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	return &Dispatcher{sink: sink, opts: opts, logger: logger}
}

// Dispatch decides which alerts the reading warrants, records them in the
// window and then delivers them. Above risk.CriticalLevel a single critical
// alert covers every violated metric; otherwise each violation gets its own
// alert. The alerts are built from assessment.Violations so that they always
// agree with the risk level. A failed delivery is logged and the alert stays
// recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, assessment models.RiskAssessment, reading models.VitalReading, window Window) ([]models.AlertRecord, Window) {
	violations := assessment.Violations
	now := d.opts.Now()
	critical := assessment.RiskLevel > risk.CriticalLevel

	var candidates []models.AlertRecord
	switch {
	case critical:
		candidates = append(candidates, d.criticalAlert(reading.PatientID, assessment, violations, now))
	default:
		for _, v := range violations {
			candidates = append(candidates, d.metricAlert(reading.PatientID, v, now))
		}
	}

	var emitted []models.AlertRecord
	for _, c := range candidates {
		if d.suppressed(window, c.Key, now) {
			metrics.AlertsSuppressed.Inc()
			d.logger.Debug("Alert suppressed by cooldown",
				zap.String("patient_id", c.PatientID),
				zap.String("key", c.Key),
			)
			continue
		}
		emitted = append(emitted, c)
	}
	if len(emitted) == 0 {
		return nil, window
	}

	window = window.Append(emitted, d.opts.WindowSize, d.opts.Retention, now)

	for _, a := range emitted {
		metrics.AlertsEmitted.WithLabelValues(string(a.Severity)).Inc()
		res := d.deliver(ctx, a, assessment, critical)
		if res.IsError() {
			metrics.DeliveryFailures.WithLabelValues("dispatch").Inc()
			d.logger.Error("Alert delivery failed",
				zap.String("patient_id", a.PatientID),
				zap.String("alert_id", a.ID),
				zap.String("severity", string(a.Severity)),
				zap.Error(res.Err()),
			)
		}
	}
	return emitted, window
}

func (d *Dispatcher) deliver(ctx context.Context, a models.AlertRecord, assessment models.RiskAssessment, critical bool) outcome.Outcome[outcome.Unit] {
	if critical {
		return d.sink.SendCriticalAlert(ctx, a, assessment)
	}
	return d.sink.SendAlert(ctx, a)
}

func (d *Dispatcher) suppressed(w Window, key string, now time.Time) bool {
	if d.opts.Cooldown <= 0 {
		return false
	}
	last, ok := w.lastByKey(key)
	return ok && now.Sub(last) < d.opts.Cooldown
}

func (d *Dispatcher) criticalAlert(patientID string, assessment models.RiskAssessment, violations []models.RuleViolation, now time.Time) models.AlertRecord {
	kinds := make([]models.MetricKind, 0, len(violations))
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		kinds = append(kinds, v.Metric)
		parts = append(parts, v.Message)
	}
	msg := fmt.Sprintf("Risk level %.2f (%s)", assessment.RiskLevel, assessment.Trend)
	if len(parts) > 0 {
		msg += ": " + strings.Join(parts, "; ")
	}
	return models.AlertRecord{
		ID:        d.opts.NewID(),
		PatientID: patientID,
		Title:     fmt.Sprintf("Critical condition for patient %s", patientID),
		Message:   msg,
		Severity:  models.SeverityCritical,
		Metrics:   kinds,
		Key:       "critical:" + metricKey(patientID, kinds),
		CreatedAt: now,
	}
}

func (d *Dispatcher) metricAlert(patientID string, v models.RuleViolation, now time.Time) models.AlertRecord {
	title, ok := metricTitles[v.Metric]
	if !ok {
		title = string(v.Metric)
	}
	kinds := []models.MetricKind{v.Metric}
	return models.AlertRecord{
		ID:        d.opts.NewID(),
		PatientID: patientID,
		Title:     title + " out of range",
		Message:   v.Message,
		Severity:  v.Severity,
		Metrics:   kinds,
		Key:       metricKey(patientID, kinds),
		CreatedAt: now,
	}
}

// metricKey identifies (patient, metric set) independent of metric order.
func metricKey(patientID string, kinds []models.MetricKind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	sort.Strings(names)
	return patientID + ":" + strings.Join(names, ",")
}
