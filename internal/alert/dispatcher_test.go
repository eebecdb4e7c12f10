package alert

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vitals-monitor/internal/alert/alerttest"
	"vitals-monitor/internal/models"
	"vitals-monitor/internal/risk"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newDispatcher(sink Sink, cooldown time.Duration, c *clock) *Dispatcher {
	seq := 0
	return NewDispatcher(sink, Options{
		Cooldown: cooldown,
		Now:      c.Now,
		NewID: func() string {
			seq++
			return fmt.Sprintf("a%d", seq)
		},
	}, zap.NewNop())
}

func run(d *Dispatcher, r models.VitalReading, w Window) ([]models.AlertRecord, Window) {
	return d.Dispatch(context.Background(), risk.Assess(r, nil), r, w)
}

func TestDispatch_CriticalHeartRateSendsOneCriticalAlert(t *testing.T) {
	sink := &alerttest.Sink{}
	d := newDispatcher(sink, 0, &clock{now: time.Now()})
	r := models.VitalReading{ID: "r1", PatientID: "P1", HeartRate: models.Float(150)}

	a := risk.Assess(r, nil)
	require.Greater(t, a.RiskLevel, risk.CriticalLevel)

	alerts, w := d.Dispatch(context.Background(), a, r, Window{})
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
	assert.Contains(t, alerts[0].Metrics, models.MetricHeartRate)
	assert.Contains(t, alerts[0].Message, "150")
	assert.Equal(t, "P1", alerts[0].PatientID)

	calls := sink.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Critical)
	assert.Equal(t, a, calls[0].Assessment)
	assert.Equal(t, 1, w.Len())
}

func TestDispatch_NormalReadingSendsNothing(t *testing.T) {
	sink := &alerttest.Sink{}
	d := newDispatcher(sink, 0, &clock{now: time.Now()})
	r := models.VitalReading{ID: "r1", PatientID: "P1", HeartRate: models.Float(80), OxygenSaturation: models.Float(98)}

	alerts, w := run(d, r, Window{})
	assert.Empty(t, alerts)
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 0, sink.Len())
}

func TestDispatch_OneWarningPerViolatedMetric(t *testing.T) {
	sink := &alerttest.Sink{}
	d := newDispatcher(sink, 0, &clock{now: time.Now()})
	r := models.VitalReading{
		ID: "r1", PatientID: "P1",
		HeartRate:        models.Float(110),
		OxygenSaturation: models.Float(93),
	}

	alerts, w := run(d, r, Window{})
	require.Len(t, alerts, 2)
	assert.Equal(t, []models.MetricKind{models.MetricHeartRate}, alerts[0].Metrics)
	assert.Equal(t, []models.MetricKind{models.MetricOxygenSaturation}, alerts[1].Metrics)
	assert.Contains(t, alerts[0].Message, "110")
	assert.Equal(t, 2, w.Len())
	for _, c := range sink.Calls() {
		assert.False(t, c.Critical)
		assert.Equal(t, models.SeverityWarning, c.Alert.Severity)
	}
	assert.Equal(t, 2, sink.Len())
}

func TestDispatch_CriticalCoversAllViolatedMetrics(t *testing.T) {
	sink := &alerttest.Sink{}
	d := newDispatcher(sink, 0, &clock{now: time.Now()})
	r := models.VitalReading{
		ID: "r1", PatientID: "P1",
		HeartRate:        models.Float(150),
		OxygenSaturation: models.Float(93),
		Glucose:          models.Float(300),
	}

	alerts, _ := run(d, r, Window{})
	require.Len(t, alerts, 1)
	assert.ElementsMatch(t,
		[]models.MetricKind{models.MetricHeartRate, models.MetricOxygenSaturation, models.MetricGlucose},
		alerts[0].Metrics)
	assert.Equal(t, "critical:P1:Glucose,HeartRate,OxygenSaturation", alerts[0].Key)
	assert.Equal(t, 1, sink.Len())
}

func TestDispatch_ZeroCooldownDoesNotSuppressAcrossCalls(t *testing.T) {
	sink := &alerttest.Sink{}
	d := newDispatcher(sink, 0, &clock{now: time.Now()})
	r := models.VitalReading{ID: "r1", PatientID: "P1", HeartRate: models.Float(110)}

	_, w := run(d, r, Window{})
	alerts, w := run(d, r, w)
	assert.Len(t, alerts, 1)
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, 2, sink.Len())
}

func TestDispatch_CooldownSuppressesSameKey(t *testing.T) {
	sink := &alerttest.Sink{}
	c := &clock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	d := newDispatcher(sink, 5*time.Minute, c)
	hr := models.VitalReading{ID: "r1", PatientID: "P1", HeartRate: models.Float(110)}

	_, w := run(d, hr, Window{})

	c.now = c.now.Add(time.Minute)
	alerts, w := run(d, hr, w)
	assert.Empty(t, alerts, "same patient and metric inside cooldown")

	spo2 := models.VitalReading{ID: "r2", PatientID: "P1", OxygenSaturation: models.Float(93)}
	alerts, w = run(d, spo2, w)
	assert.Len(t, alerts, 1, "different metric is not a duplicate")

	other := models.VitalReading{ID: "r3", PatientID: "P2", HeartRate: models.Float(110)}
	alerts, w = run(d, other, w)
	assert.Len(t, alerts, 1, "different patient is not a duplicate")

	c.now = c.now.Add(5 * time.Minute)
	alerts, _ = run(d, hr, w)
	assert.Len(t, alerts, 1, "cooldown elapsed")
	assert.Equal(t, 4, sink.Len())
}

func TestDispatch_DeliveryFailureKeepsWindow(t *testing.T) {
	sink := &alerttest.Sink{Fail: true}
	d := newDispatcher(sink, time.Hour, &clock{now: time.Now()})
	r := models.VitalReading{ID: "r1", PatientID: "P1", HeartRate: models.Float(150)}

	alerts, w := run(d, r, Window{})
	require.Len(t, alerts, 1)
	assert.Equal(t, 1, w.Len())

	alerts, _ = run(d, r, w)
	assert.Empty(t, alerts, "a failed delivery still counts as decided")
	assert.Equal(t, 1, sink.Len())
}

func TestDispatch_DoesNotMutateInputWindow(t *testing.T) {
	d := newDispatcher(&alerttest.Sink{}, 0, &clock{now: time.Now()})
	in := Window{}
	_, out := run(d, models.VitalReading{ID: "r1", PatientID: "P1", HeartRate: models.Float(110)}, in)
	assert.Equal(t, 0, in.Len())
	assert.Equal(t, 1, out.Len())
}

func TestDispatch_AlertsFollowAssessmentViolations(t *testing.T) {
	sink := &alerttest.Sink{}
	d := newDispatcher(sink, 0, &clock{now: time.Now()})

	assessed := models.VitalReading{ID: "r1", PatientID: "P1", OxygenSaturation: models.Float(93)}
	a := risk.Assess(assessed, nil)
	// the reading passed alongside carries a different channel; only the
	// assessment decides what is alerted
	other := models.VitalReading{ID: "r1", PatientID: "P1", HeartRate: models.Float(120)}

	alerts, _ := d.Dispatch(context.Background(), a, other, Window{})
	require.Len(t, alerts, 1)
	assert.Equal(t, []models.MetricKind{models.MetricOxygenSaturation}, alerts[0].Metrics)

	alerts, _ = d.Dispatch(context.Background(), models.RiskAssessment{}, other, Window{})
	assert.Empty(t, alerts, "no violations in the assessment means no alerts")
}
