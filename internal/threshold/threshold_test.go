package threshold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitals-monitor/internal/models"
)

func reading() models.VitalReading {
	return models.VitalReading{ID: "r1", PatientID: "P1"}
}

func TestEvaluate_AllAbsent(t *testing.T) {
	assert.Empty(t, Evaluate(reading()))
}

func TestEvaluate_HeartRateBoundaries(t *testing.T) {
	for _, hr := range []float64{60, 100} {
		r := reading()
		r.HeartRate = models.Float(hr)
		assert.Empty(t, Evaluate(r), "hr=%v is inside the inclusive range", hr)
	}
	for _, hr := range []float64{59, 101} {
		r := reading()
		r.HeartRate = models.Float(hr)
		v := Evaluate(r)
		require.Len(t, v, 1, "hr=%v", hr)
		assert.Equal(t, models.MetricHeartRate, v[0].Metric)
		assert.Equal(t, models.SeverityWarning, v[0].Severity)
	}
}

func TestEvaluate_BloodPressure(t *testing.T) {
	r := reading()
	r.BPSystolic, r.BPDiastolic = models.Float(140), models.Float(90)
	assert.Empty(t, Evaluate(r))

	r.BPSystolic = models.Float(141)
	v := Evaluate(r)
	require.Len(t, v, 1)
	assert.Equal(t, models.MetricBloodPressure, v[0].Metric)

	r.BPSystolic, r.BPDiastolic = models.Float(140), models.Float(91)
	v = Evaluate(r)
	require.Len(t, v, 1)
	assert.Equal(t, models.MetricBloodPressure, v[0].Metric)

	r.BPSystolic, r.BPDiastolic = models.Float(150), models.Float(95)
	assert.Len(t, Evaluate(r), 1, "both components out of range still give one violation")

	r.BPSystolic, r.BPDiastolic = models.Float(185), models.Float(95)
	v = Evaluate(r)
	require.Len(t, v, 1)
	assert.Equal(t, models.SeverityCritical, v[0].Severity)
}

func TestEvaluate_OtherChannels(t *testing.T) {
	cases := []struct {
		name     string
		set      func(*models.VitalReading)
		metric   models.MetricKind
		severity models.Severity
	}{
		{"spo2 low", func(r *models.VitalReading) { r.OxygenSaturation = models.Float(94) }, models.MetricOxygenSaturation, models.SeverityWarning},
		{"spo2 critical", func(r *models.VitalReading) { r.OxygenSaturation = models.Float(85) }, models.MetricOxygenSaturation, models.SeverityCritical},
		{"fever", func(r *models.VitalReading) { r.TemperatureCelsius = models.Float(38.2) }, models.MetricTemperature, models.SeverityWarning},
		{"hypothermia", func(r *models.VitalReading) { r.TemperatureCelsius = models.Float(34.5) }, models.MetricTemperature, models.SeverityCritical},
		{"tachypnoea", func(r *models.VitalReading) { r.RespiratoryRate = models.Float(24) }, models.MetricRespiratoryRate, models.SeverityWarning},
		{"bradypnoea critical", func(r *models.VitalReading) { r.RespiratoryRate = models.Float(6) }, models.MetricRespiratoryRate, models.SeverityCritical},
		{"hyperglycaemia", func(r *models.VitalReading) { r.Glucose = models.Float(190) }, models.MetricGlucose, models.SeverityWarning},
		{"hypoglycaemia critical", func(r *models.VitalReading) { r.Glucose = models.Float(45) }, models.MetricGlucose, models.SeverityCritical},
		{"hr critical", func(r *models.VitalReading) { r.HeartRate = models.Float(150) }, models.MetricHeartRate, models.SeverityCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := reading()
			tc.set(&r)
			v := Evaluate(r)
			require.Len(t, v, 1)
			assert.Equal(t, tc.metric, v[0].Metric)
			assert.Equal(t, tc.severity, v[0].Severity)
			assert.NotEmpty(t, v[0].Message)
		})
	}
}

func TestEvaluate_NormalEdges(t *testing.T) {
	r := reading()
	r.OxygenSaturation = models.Float(95)
	r.TemperatureCelsius = models.Float(36.1)
	r.RespiratoryRate = models.Float(20)
	r.Glucose = models.Float(140)
	assert.Empty(t, Evaluate(r))
}

func TestEvaluate_FixedOrderAndMessage(t *testing.T) {
	r := reading()
	r.Glucose = models.Float(200)
	r.HeartRate = models.Float(120)
	v := Evaluate(r)
	require.Len(t, v, 2)
	assert.Equal(t, models.MetricHeartRate, v[0].Metric)
	assert.Equal(t, models.MetricGlucose, v[1].Metric)
	assert.Equal(t, "Heart rate 120 bpm outside normal range 60–100", v[0].Message)
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0.0, Distance(HeartRate, 80))
	assert.Equal(t, 20.0, Distance(HeartRate, 120))
	assert.Equal(t, 10.0, Distance(HeartRate, 50))
	assert.Equal(t, 3.0, Distance(OxygenSaturation, 92))
}
