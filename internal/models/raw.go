package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"vitals-monitor/internal/errs"
)

// RawDeviceSample is the wire shape published by bedside devices. ECG belts
// report HR/RR, BP/SpO2 cuffs report the bp and spo2 blocks, thermometers and
// glucometers report their own channels.
type RawDeviceSample struct {
	PatientID        string   `json:"patientId"`
	FacilityID       string   `json:"facilityId,omitempty"`
	AdmissionID      string   `json:"admissionId,omitempty"`
	DeviceID         string   `json:"deviceId"`
	DeviceType       string   `json:"deviceType,omitempty"`
	EpochTime        int64    `json:"epochTime,omitempty"`
	CurrentTimestamp int64    `json:"currentTimestamp,omitempty"`
	PacketNo         int64    `json:"packetNo,omitempty"`
	HR               *int     `json:"HR,omitempty"`
	RR               *int     `json:"RR,omitempty"`
	BodyTemp         *float64 `json:"BODYTEMP,omitempty"`
	Glucose          *float64 `json:"glucose,omitempty"`
	BP               *struct {
		BPSystolic  int `json:"bpSystolic"`
		BPDiastolic int `json:"bpDiastolic"`
	} `json:"bp,omitempty"`
	SPO2 *struct {
		Spo2      int `json:"spo2"`
		PulseRate int `json:"pulseRate"`
	} `json:"spo2,omitempty"`
	Notes string `json:"notes,omitempty"`
}

const MessageTypeVitalUpdate = "vital_update"

// Message is a broadcast update, already parsed at the MQTT boundary.
type Message struct {
	Topic      string
	Type       string
	Reading    *VitalReading
	ReceivedAt time.Time
}

// ToReading normalizes a device sample. Zero HR/RR values mean lead-off and
// are treated as absent, as is a BP block with a zero systolic.
func (s RawDeviceSample) ToReading(now time.Time) (VitalReading, error) {
	if s.PatientID == "" {
		return VitalReading{}, errs.Validation("normalize", "patient id is empty for device %q", s.DeviceID)
	}

	r := VitalReading{
		ID:        s.readingID(),
		PatientID: s.PatientID,
		DeviceID:  s.DeviceID,
		Timestamp: now,
		Notes:     s.Notes,
	}
	switch {
	case s.CurrentTimestamp > 0:
		r.Timestamp = time.UnixMilli(s.CurrentTimestamp)
	case s.EpochTime > 0:
		r.Timestamp = time.Unix(s.EpochTime, 0)
	}

	if s.HR != nil && *s.HR > 0 {
		r.HeartRate = Float(float64(*s.HR))
	}
	if s.RR != nil && *s.RR > 0 {
		r.RespiratoryRate = Float(float64(*s.RR))
	}
	if s.SPO2 != nil {
		if s.SPO2.Spo2 > 0 {
			r.OxygenSaturation = Float(float64(s.SPO2.Spo2))
		}
		if r.HeartRate == nil && s.SPO2.PulseRate > 0 {
			r.HeartRate = Float(float64(s.SPO2.PulseRate))
		}
	}
	if s.BP != nil && s.BP.BPSystolic != 0 {
		r.BPSystolic = Float(float64(s.BP.BPSystolic))
		r.BPDiastolic = Float(float64(s.BP.BPDiastolic))
	}
	if s.BodyTemp != nil {
		r.TemperatureCelsius = Float(*s.BodyTemp)
	}
	if s.Glucose != nil {
		r.Glucose = Float(*s.Glucose)
	}

	if !r.HasChannels() {
		return VitalReading{}, errs.Validation("normalize", "sample from device %q carries no vital channels", s.DeviceID)
	}
	if err := ValidateReading(r); err != nil {
		return VitalReading{}, err
	}
	return r, nil
}

// readingID includes the device clock so that a packet counter restarting
// after a device reboot does not collide with earlier readings. Without a
// device clock the packet number alone must be monotonic per device.
func (s RawDeviceSample) readingID() string {
	if s.DeviceID == "" || s.PacketNo <= 0 {
		return uuid.New().String()
	}
	switch {
	case s.CurrentTimestamp > 0:
		return fmt.Sprintf("%s-%d-%d", s.DeviceID, s.CurrentTimestamp, s.PacketNo)
	case s.EpochTime > 0:
		return fmt.Sprintf("%s-%d-%d", s.DeviceID, s.EpochTime*1000, s.PacketNo)
	default:
		return fmt.Sprintf("%s-%d", s.DeviceID, s.PacketNo)
	}
}

func (r VitalReading) HasChannels() bool {
	for _, v := range r.channels() {
		if v.value != nil {
			return true
		}
	}
	return false
}

type channel struct {
	name  string
	value *float64
}

func (r VitalReading) channels() []channel {
	return []channel{
		{"heartRate", r.HeartRate},
		{"bpSystolic", r.BPSystolic},
		{"bpDiastolic", r.BPDiastolic},
		{"oxygenSaturation", r.OxygenSaturation},
		{"temperatureCelsius", r.TemperatureCelsius},
		{"respiratoryRate", r.RespiratoryRate},
		{"glucose", r.Glucose},
	}
}

// ValidateReading rejects readings the evaluator cannot tolerate: missing
// identity, non-finite or negative channel values, SpO2 above 100%.
func ValidateReading(r VitalReading) error {
	if r.PatientID == "" {
		return errs.Validation("validate", "reading %q has no patient id", r.ID)
	}
	if r.ID == "" {
		return errs.Validation("validate", "reading for patient %s has no id", r.PatientID)
	}
	for _, c := range r.channels() {
		if c.value == nil {
			continue
		}
		v := *c.value
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return errs.Validation("validate", "reading %s: %s has invalid value %v", r.ID, c.name, v)
		}
	}
	if r.OxygenSaturation != nil && *r.OxygenSaturation > 100 {
		return errs.Validation("validate", "reading %s: oxygenSaturation %v exceeds 100%%", r.ID, *r.OxygenSaturation)
	}
	return nil
}
