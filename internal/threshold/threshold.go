// Package threshold maps a vital reading to clinical rule violations using
// fixed bounds. Normal ranges are inclusive; absent channels are skipped.
package threshold

import (
	"fmt"
	"math"

	"vitals-monitor/internal/models"
)

var (
	noMin = math.Inf(-1)
	noMax = math.Inf(1)
)

// Range is an inclusive band.
type Range struct {
	Min float64
	Max float64
}

func (r Range) contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Bound pairs the normal band with the wider band outside of which a value
// is critical.
type Bound struct {
	Normal   Range
	Critical Range
	Unit     string
}

var (
	HeartRate        = Bound{Normal: Range{60, 100}, Critical: Range{40, 130}, Unit: "bpm"}
	Systolic         = Bound{Normal: Range{noMin, 140}, Critical: Range{noMin, 180}, Unit: "mmHg"}
	Diastolic        = Bound{Normal: Range{noMin, 90}, Critical: Range{noMin, 120}, Unit: "mmHg"}
	OxygenSaturation = Bound{Normal: Range{95, noMax}, Critical: Range{90, noMax}, Unit: "%"}
	Temperature      = Bound{Normal: Range{36.1, 37.2}, Critical: Range{35.0, 39.5}, Unit: "°C"}
	RespiratoryRate  = Bound{Normal: Range{12, 20}, Critical: Range{8, 30}, Unit: "/min"}
	Glucose          = Bound{Normal: Range{70, 140}, Critical: Range{54, 250}, Unit: "mg/dL"}
)

func (b Bound) classify(v float64) models.Severity {
	switch {
	case b.Normal.contains(v):
		return models.SeverityNormal
	case b.Critical.contains(v):
		return models.SeverityWarning
	default:
		return models.SeverityCritical
	}
}

// Evaluate is pure and deterministic. Violations come back in a fixed metric
// order: heart rate, blood pressure, SpO2, temperature, respiratory rate, glucose.
func Evaluate(r models.VitalReading) []models.RuleViolation {
	var out []models.RuleViolation

	single := func(metric models.MetricKind, label string, v *float64, b Bound) {
		if v == nil {
			return
		}
		sev := b.classify(*v)
		if sev == models.SeverityNormal {
			return
		}
		out = append(out, models.RuleViolation{
			Metric:   metric,
			Severity: sev,
			Message:  fmt.Sprintf("%s %s %s outside normal range %s", label, formatValue(*v), b.Unit, describe(b.Normal)),
		})
	}

	single(models.MetricHeartRate, "Heart rate", r.HeartRate, HeartRate)
	if v, ok := evaluateBloodPressure(r); ok {
		out = append(out, v)
	}
	single(models.MetricOxygenSaturation, "Oxygen saturation", r.OxygenSaturation, OxygenSaturation)
	single(models.MetricTemperature, "Temperature", r.TemperatureCelsius, Temperature)
	single(models.MetricRespiratoryRate, "Respiratory rate", r.RespiratoryRate, RespiratoryRate)
	single(models.MetricGlucose, "Glucose", r.Glucose, Glucose)
	return out
}

// evaluateBloodPressure yields at most one violation for the pair; either
// component out of range is enough.
func evaluateBloodPressure(r models.VitalReading) (models.RuleViolation, bool) {
	if r.BPSystolic == nil && r.BPDiastolic == nil {
		return models.RuleViolation{}, false
	}
	sev := models.SeverityNormal
	if r.BPSystolic != nil {
		sev = worse(sev, Systolic.classify(*r.BPSystolic))
	}
	if r.BPDiastolic != nil {
		sev = worse(sev, Diastolic.classify(*r.BPDiastolic))
	}
	if sev == models.SeverityNormal {
		return models.RuleViolation{}, false
	}
	return models.RuleViolation{
		Metric:   models.MetricBloodPressure,
		Severity: sev,
		Message:  fmt.Sprintf("Blood pressure %s/%s mmHg above 140/90", optional(r.BPSystolic), optional(r.BPDiastolic)),
	}, true
}

func worse(a, b models.Severity) models.Severity {
	rank := map[models.Severity]int{models.SeverityNormal: 0, models.SeverityWarning: 1, models.SeverityCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func formatValue(v float64) string {
	return fmt.Sprintf("%g", v)
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatValue(*v)
}

func describe(r Range) string {
	switch {
	case math.IsInf(r.Min, -1):
		return fmt.Sprintf("≤%g", r.Max)
	case math.IsInf(r.Max, 1):
		return fmt.Sprintf("≥%g", r.Min)
	default:
		return fmt.Sprintf("%g–%g", r.Min, r.Max)
	}
}

// Distance is how far v lies outside the normal band of b; 0 when inside.
func Distance(b Bound, v float64) float64 {
	switch {
	case v < b.Normal.Min:
		return b.Normal.Min - v
	case v > b.Normal.Max:
		return v - b.Normal.Max
	default:
		return 0
	}
}
