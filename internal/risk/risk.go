// Package risk combines threshold violations with a short-term trend into a
// normalized risk level and a list of recommendations.
package risk

import (
	"math"

	"vitals-monitor/internal/models"
	"vitals-monitor/internal/threshold"
)

const (
	DefaultTrendWindow = 10

	// CriticalLevel is the level above which an assessment is treated as critical.
	CriticalLevel = 0.7

	criticalBase   = 0.75
	criticalStep   = 0.1
	warningWeight  = 0.15
	warningOnCrit  = 0.05
	worseningBonus = 0.1
	improvingBonus = -0.05
)

var recommendations = map[models.MetricKind]string{
	models.MetricHeartRate:        "Reassess cardiac status and consider a 12-lead ECG",
	models.MetricBloodPressure:    "Repeat blood pressure measurement and review antihypertensive therapy",
	models.MetricOxygenSaturation: "Assess airway and consider supplemental oxygen",
	models.MetricTemperature:      "Evaluate for infection and recheck temperature within the hour",
	models.MetricRespiratoryRate:  "Assess respiratory effort and work of breathing",
	models.MetricGlucose:          "Recheck blood glucose and review insulin or dextrose orders",
}

const (
	escalateRecommendation  = "Escalate to the rapid response team"
	frequencyRecommendation = "Increase monitoring frequency"
)

// trendChannel describes one numeric channel compared against its history.
type trendChannel struct {
	bound     threshold.Bound
	tolerance float64
	value     func(models.VitalReading) *float64
}

var trendChannels = []trendChannel{
	{threshold.HeartRate, 5, func(r models.VitalReading) *float64 { return r.HeartRate }},
	{threshold.Systolic, 5, func(r models.VitalReading) *float64 { return r.BPSystolic }},
	{threshold.Diastolic, 5, func(r models.VitalReading) *float64 { return r.BPDiastolic }},
	{threshold.OxygenSaturation, 1, func(r models.VitalReading) *float64 { return r.OxygenSaturation }},
	{threshold.Temperature, 0.2, func(r models.VitalReading) *float64 { return r.TemperatureCelsius }},
	{threshold.RespiratoryRate, 2, func(r models.VitalReading) *float64 { return r.RespiratoryRate }},
	{threshold.Glucose, 10, func(r models.VitalReading) *float64 { return r.Glucose }},
}

// Aggregator holds the tunables of the assessment. The zero value uses
// DefaultTrendWindow.
type Aggregator struct {
	TrendWindow int
}

// Assess uses the default trend window.
func Assess(latest models.VitalReading, history []models.VitalReading) models.RiskAssessment {
	return Aggregator{}.Assess(latest, history)
}

// Assess is pure. history is oldest first; if its last element is latest
// itself it is ignored for the trend.
func (a Aggregator) Assess(latest models.VitalReading, history []models.VitalReading) models.RiskAssessment {
	violations := threshold.Evaluate(latest)

	prior := history
	if n := len(prior); n > 0 && prior[n-1].ID == latest.ID {
		prior = prior[:n-1]
	}
	window := a.TrendWindow
	if window <= 0 {
		window = DefaultTrendWindow
	}
	if len(prior) > window {
		prior = prior[len(prior)-window:]
	}

	trend := computeTrend(latest, prior)
	return models.RiskAssessment{
		RiskLevel:       level(violations, trend),
		Trend:           trend,
		Violations:      violations,
		Recommendations: recommend(violations, trend),
	}
}

func computeTrend(latest models.VitalReading, prior []models.VitalReading) models.Trend {
	if len(prior) == 0 {
		return models.TrendUnknown
	}

	compared, worsening, improving := 0, 0, 0
	for _, ch := range trendChannels {
		current := ch.value(latest)
		if current == nil {
			continue
		}
		sum, n := 0.0, 0
		for _, r := range prior {
			if v := ch.value(r); v != nil {
				sum += *v
				n++
			}
		}
		if n == 0 {
			continue
		}
		compared++
		delta := threshold.Distance(ch.bound, *current) - threshold.Distance(ch.bound, sum/float64(n))
		switch {
		case delta > ch.tolerance:
			worsening++
		case delta < -ch.tolerance:
			improving++
		}
	}

	switch {
	case compared == 0:
		return models.TrendUnknown
	case worsening > improving:
		return models.TrendWorsening
	case improving > worsening:
		return models.TrendImproving
	default:
		return models.TrendStable
	}
}

func level(violations []models.RuleViolation, trend models.Trend) float64 {
	critical, warning := 0, 0
	for _, v := range violations {
		switch v.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityWarning:
			warning++
		}
	}

	bonus := 0.0
	switch trend {
	case models.TrendWorsening:
		bonus = worseningBonus
	case models.TrendImproving:
		bonus = improvingBonus
	}

	if critical > 0 {
		l := criticalBase + criticalStep*float64(critical-1) + warningOnCrit*float64(warning) + math.Max(bonus, 0)
		return math.Min(l, 1)
	}
	l := warningWeight*float64(warning) + bonus
	return math.Max(0, math.Min(l, CriticalLevel))
}

func recommend(violations []models.RuleViolation, trend models.Trend) []string {
	out := []string{}
	seen := make(map[models.MetricKind]bool)
	for _, v := range violations {
		if v.Severity == models.SeverityCritical {
			out = append(out, escalateRecommendation)
			break
		}
	}
	for _, v := range violations {
		if seen[v.Metric] {
			continue
		}
		seen[v.Metric] = true
		if hint, ok := recommendations[v.Metric]; ok {
			out = append(out, hint)
		}
	}
	if trend == models.TrendWorsening {
		out = append(out, frequencyRecommendation)
	}
	return out
}
