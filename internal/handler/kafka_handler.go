package handler

import (
	"encoding/json"

	"go.uber.org/zap"

	"vitals-monitor/internal/metrics"
	"vitals-monitor/internal/models"
	"vitals-monitor/internal/stream"
)

// vitalKeys are the JSON fields that mark a payload as a vital-sign sample.
var vitalKeys = []string{"HR", "RR", "bp", "spo2", "BODYTEMP", "glucose"}

// DeviceRouter fans raw device samples from the telemetry topic out to the
// session of the patient they belong to.
type DeviceRouter struct {
	hub    *stream.Hub[models.RawDeviceSample]
	logger *zap.Logger
}

func NewDeviceRouter(hub *stream.Hub[models.RawDeviceSample], logger *zap.Logger) *DeviceRouter {
	return &DeviceRouter{hub: hub, logger: logger}
}

// RouteVitalsMessage returns the number of sessions the sample reached.
// Samples for patients nobody monitors are dropped.
func (d *DeviceRouter) RouteVitalsMessage(msgValue []byte) int {
	metrics.ReadingsReceived.WithLabelValues("device").Inc()

	var genericMsg map[string]json.RawMessage
	if err := json.Unmarshal(msgValue, &genericMsg); err != nil {
		d.logger.Warn("Error unmarshalling message for routing", zap.Error(err))
		metrics.ReadingsDropped.WithLabelValues("malformed").Inc()
		return 0
	}

	if !hasVitals(genericMsg) {
		d.logger.Debug("Unknown message type received on vitals topic, ignoring", zap.ByteString("message", msgValue))
		metrics.ReadingsDropped.WithLabelValues("unknown_type").Inc()
		return 0
	}

	var sample models.RawDeviceSample
	if err := json.Unmarshal(msgValue, &sample); err != nil {
		d.logger.Warn("Error unmarshalling vitals sample", zap.Error(err), zap.ByteString("message", msgValue))
		metrics.ReadingsDropped.WithLabelValues("malformed").Inc()
		return 0
	}
	if sample.PatientID == "" {
		metrics.ReadingsDropped.WithLabelValues("no_patient").Inc()
		return 0
	}

	delivered := d.hub.Publish(sample.PatientID, sample)
	if delivered == 0 {
		reason := d.dropReason(sample.PatientID)
		if reason == "backpressure" {
			d.logger.Warn("Session buffer full, sample dropped", zap.String("patient_id", sample.PatientID))
		}
		metrics.ReadingsDropped.WithLabelValues(reason).Inc()
	}
	return delivered
}

// dropReason tells a patient nobody monitors apart from a live session whose
// buffer is full.
func (d *DeviceRouter) dropReason(patientID string) string {
	if d.hub.Subscribers(patientID) > 0 {
		return "backpressure"
	}
	return "unmonitored"
}

func hasVitals(msg map[string]json.RawMessage) bool {
	for _, k := range vitalKeys {
		if _, ok := msg[k]; ok {
			return true
		}
	}
	return false
}
