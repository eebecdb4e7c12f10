package risk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitals-monitor/internal/models"
)

func hr(id string, v float64) models.VitalReading {
	return models.VitalReading{ID: id, PatientID: "P1", HeartRate: models.Float(v)}
}

func TestAssess_EmptyHistoryIsUnknown(t *testing.T) {
	for _, latest := range []models.VitalReading{hr("a", 80), hr("b", 150), {ID: "c", PatientID: "P1"}} {
		assert.Equal(t, models.TrendUnknown, Assess(latest, nil).Trend)
	}
}

func TestAssess_NormalReadingIsNearZero(t *testing.T) {
	latest := models.VitalReading{ID: "r", PatientID: "P1", HeartRate: models.Float(80), OxygenSaturation: models.Float(98)}
	a := Assess(latest, nil)
	assert.InDelta(t, 0, a.RiskLevel, 0.01)
	assert.Empty(t, a.Violations)
	assert.NotNil(t, a.Recommendations)
	assert.Empty(t, a.Recommendations)
}

func TestAssess_CriticalPushesAboveThreshold(t *testing.T) {
	a := Assess(hr("r", 150), nil)
	assert.Greater(t, a.RiskLevel, CriticalLevel)
	require.Len(t, a.Violations, 1)
	assert.Equal(t, models.SeverityCritical, a.Violations[0].Severity)
	assert.Equal(t, escalateRecommendation, a.Recommendations[0])
	assert.Contains(t, a.Recommendations, recommendations[models.MetricHeartRate])
}

func TestAssess_WarningsStayBelowCritical(t *testing.T) {
	latest := models.VitalReading{
		ID: "r", PatientID: "P1",
		HeartRate:          models.Float(110),
		BPSystolic:         models.Float(150),
		OxygenSaturation:   models.Float(93),
		TemperatureCelsius: models.Float(38),
		RespiratoryRate:    models.Float(24),
		Glucose:            models.Float(180),
	}
	a := Assess(latest, nil)
	assert.Len(t, a.Violations, 6)
	assert.LessOrEqual(t, a.RiskLevel, CriticalLevel)
	assert.Greater(t, a.RiskLevel, 0.0)
	assert.Len(t, a.Recommendations, 6)
}

func TestAssess_Trend(t *testing.T) {
	var history []models.VitalReading
	for i := 0; i < 5; i++ {
		history = append(history, hr(fmt.Sprintf("h%d", i), 110))
	}

	assert.Equal(t, models.TrendWorsening, Assess(hr("w", 125), history).Trend)
	assert.Equal(t, models.TrendImproving, Assess(hr("i", 90), history).Trend)
	assert.Equal(t, models.TrendStable, Assess(hr("s", 107), history).Trend)
}

func TestAssess_TrendUsesOnlyRecentWindow(t *testing.T) {
	var history []models.VitalReading
	for i := 0; i < 20; i++ {
		history = append(history, hr(fmt.Sprintf("old%d", i), 140))
	}
	for i := 0; i < 10; i++ {
		history = append(history, hr(fmt.Sprintf("new%d", i), 80))
	}
	// Mean of the last ten is 80, so 80 again is stable even though older readings were worse.
	assert.Equal(t, models.TrendStable, Assess(hr("x", 80), history).Trend)
	assert.Equal(t, models.TrendImproving, Aggregator{TrendWindow: 30}.Assess(hr("x", 80), history).Trend)
}

func TestAssess_IgnoresLatestAtEndOfHistory(t *testing.T) {
	latest := hr("same", 120)
	assert.Equal(t, models.TrendUnknown, Assess(latest, []models.VitalReading{latest}).Trend)
}

func TestAssess_NoComparableChannelsIsUnknown(t *testing.T) {
	history := []models.VitalReading{{ID: "h", PatientID: "P1", Glucose: models.Float(100)}}
	assert.Equal(t, models.TrendUnknown, Assess(hr("r", 80), history).Trend)
}

func TestAssess_WorseningAddsRecommendation(t *testing.T) {
	history := []models.VitalReading{hr("h1", 100), hr("h2", 100)}
	a := Assess(hr("r", 120), history)
	assert.Equal(t, models.TrendWorsening, a.Trend)
	assert.Equal(t, frequencyRecommendation, a.Recommendations[len(a.Recommendations)-1])
	assert.InDelta(t, warningWeight+worseningBonus, a.RiskLevel, 1e-9)
}
