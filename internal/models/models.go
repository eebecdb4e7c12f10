package models

import "time"

// VitalReading is one normalized measurement sample. Absent channels are nil.
type VitalReading struct {
	ID                 string    `json:"id"`
	PatientID          string    `json:"patientId"`
	DeviceID           string    `json:"deviceId,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
	HeartRate          *float64  `json:"heartRate,omitempty"`
	BPSystolic         *float64  `json:"bpSystolic,omitempty"`
	BPDiastolic        *float64  `json:"bpDiastolic,omitempty"`
	OxygenSaturation   *float64  `json:"oxygenSaturation,omitempty"`
	TemperatureCelsius *float64  `json:"temperatureCelsius,omitempty"`
	RespiratoryRate    *float64  `json:"respiratoryRate,omitempty"`
	Glucose            *float64  `json:"glucose,omitempty"`
	Notes              string    `json:"notes,omitempty"`
}

// Float returns a pointer to v, for building readings.
func Float(v float64) *float64 { return &v }

type MetricKind string

const (
	MetricHeartRate        MetricKind = "HeartRate"
	MetricBloodPressure    MetricKind = "BloodPressure"
	MetricOxygenSaturation MetricKind = "OxygenSaturation"
	MetricTemperature      MetricKind = "Temperature"
	MetricRespiratoryRate  MetricKind = "RespiratoryRate"
	MetricGlucose          MetricKind = "Glucose"
)

type Severity string

const (
	SeverityNormal   Severity = "Normal"
	SeverityWarning  Severity = "Warning"
	SeverityCritical Severity = "Critical"
)

type RuleViolation struct {
	Metric   MetricKind `json:"metric"`
	Message  string     `json:"message"`
	Severity Severity   `json:"severity"`
}

type Trend string

const (
	TrendImproving Trend = "Improving"
	TrendStable    Trend = "Stable"
	TrendWorsening Trend = "Worsening"
	TrendUnknown   Trend = "Unknown"
)

// RiskAssessment is derived from a reading and never persisted on its own.
type RiskAssessment struct {
	RiskLevel       float64         `json:"riskLevel"`
	Trend           Trend           `json:"trend"`
	Violations      []RuleViolation `json:"violations,omitempty"`
	Recommendations []string        `json:"recommendations"`
}

type AlertRecord struct {
	ID           string       `json:"id"`
	PatientID    string       `json:"patientId"`
	Title        string       `json:"title"`
	Message      string       `json:"message"`
	Severity     Severity     `json:"severity"`
	Metrics      []MetricKind `json:"metrics,omitempty"`
	Key          string       `json:"key,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	Acknowledged bool         `json:"acknowledged"`
}

type Patient struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Ward       string    `json:"ward,omitempty"`
	BedID      string    `json:"bedId,omitempty"`
	Gender     string    `json:"gender,omitempty"`
	Age        int       `json:"age,omitempty"`
	AdmittedAt time.Time `json:"admittedAt"`
}

type DeviceDescriptor struct {
	ID         string `json:"id"`
	PatientID  string `json:"patientId"`
	DeviceType string `json:"deviceType"`
	Name       string `json:"name,omitempty"`
	Connected  bool   `json:"connected"`
}

// MonitoringRecord is the persisted lifecycle row of a patient's session.
type MonitoringRecord struct {
	PatientID       string
	Status          string
	StartTime       int64
	EndTime         *int64
	LastReadingTime *int64
}

// MonitoringStartPayload arrives on the monitoring start control topic.
type MonitoringStartPayload struct {
	PatientID  string `json:"patientId"`
	FacilityID string `json:"facilityId"`
	ProviderID string `json:"providerId"`
}

// MonitoringActionPayload arrives on the monitoring action control topic.
type MonitoringActionPayload struct {
	PatientID string `json:"patientId"`
	Action    string `json:"action"`
	AlertID   string `json:"alertId,omitempty"`
}

// MetricSample is one timing observation for the performance reporter.
type MetricSample struct {
	Name      string    `json:"name"`
	ValueMs   float64   `json:"valueMs"`
	Timestamp time.Time `json:"timestamp"`
}
