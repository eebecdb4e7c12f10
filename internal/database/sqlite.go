package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"vitals-monitor/internal/models"
)

const timeFormat = "2006-01-02 15:04:05.000"

const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; one connection also keeps ":memory:" to a single database.
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Repository) initSchema() error {
	schema := []string{`
    CREATE TABLE IF NOT EXISTS monitoring_sessions (
        patient_id TEXT PRIMARY KEY,
        facility_id TEXT NOT NULL,
        status TEXT NOT NULL,
        start_time TEXT NOT NULL,
        end_time TEXT,
        last_reading_time TEXT
    );`, `
    CREATE TABLE IF NOT EXISTS patients (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        ward TEXT,
        bed_id TEXT,
        gender TEXT,
        age INTEGER,
        admitted_at TEXT
    );`, `
    CREATE TABLE IF NOT EXISTS devices (
        id TEXT PRIMARY KEY,
        patient_id TEXT NOT NULL,
        device_type TEXT NOT NULL,
        name TEXT,
        connected INTEGER NOT NULL DEFAULT 0
    );`, `
    CREATE TABLE IF NOT EXISTS vital_readings (
        id TEXT PRIMARY KEY,
        patient_id TEXT NOT NULL,
        device_id TEXT,
        recorded_at INTEGER NOT NULL,
        heart_rate REAL,
        bp_systolic REAL,
        bp_diastolic REAL,
        oxygen_saturation REAL,
        temperature_celsius REAL,
        respiratory_rate REAL,
        glucose REAL,
        notes TEXT
    );`,
		`CREATE INDEX IF NOT EXISTS idx_vital_readings_patient ON vital_readings (patient_id, recorded_at);`, `
    CREATE TABLE IF NOT EXISTS alerts (
        id TEXT PRIMARY KEY,
        patient_id TEXT NOT NULL,
        title TEXT NOT NULL,
        message TEXT NOT NULL,
        severity TEXT NOT NULL,
        metrics TEXT,
        alert_key TEXT,
        created_at INTEGER NOT NULL,
        acknowledged INTEGER NOT NULL DEFAULT 0
    );`,
	}
	for _, stmt := range schema {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeFormat, s, time.UTC)
}

func (r *Repository) StartMonitoring(ctx context.Context, patientID, facilityID string) error {
	query := `INSERT OR REPLACE INTO monitoring_sessions (patient_id, facility_id, status, start_time, end_time, last_reading_time) VALUES (?, ?, ?, ?, NULL, NULL)`
	_, err := r.db.ExecContext(ctx, query, patientID, facilityID, StatusRunning, formatTime(time.Now()))
	return err
}

func (r *Repository) StopMonitoring(ctx context.Context, patientID string) error {
	query := `UPDATE monitoring_sessions SET status = ?, end_time = ? WHERE patient_id = ?`
	_, err := r.db.ExecContext(ctx, query, StatusStopped, formatTime(time.Now()), patientID)
	return err
}

// BatchUpdateLastReadingTime writes unix-second timestamps in one transaction.
func (r *Repository) BatchUpdateLastReadingTime(ctx context.Context, updates map[string]int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "UPDATE monitoring_sessions SET last_reading_time = ? WHERE patient_id = ?")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for patientID, ts := range updates {
		if _, err := stmt.ExecContext(ctx, formatTime(time.Unix(ts, 0)), patientID); err != nil {
			tx.Rollback()
			return fmt.Errorf("update last reading time for %s: %w", patientID, err)
		}
	}
	return tx.Commit()
}

func (r *Repository) GetActiveSessions(ctx context.Context) ([]models.MonitoringRecord, error) {
	query := `SELECT patient_id, status, start_time, end_time, last_reading_time FROM monitoring_sessions WHERE status = ?`
	rows, err := r.db.QueryContext(ctx, query, StatusRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.MonitoringRecord
	for rows.Next() {
		var rec models.MonitoringRecord
		var startTimeStr string
		var endTimeStr, lastReadingStr sql.NullString

		if err := rows.Scan(&rec.PatientID, &rec.Status, &startTimeStr, &endTimeStr, &lastReadingStr); err != nil {
			return nil, err
		}

		startTime, err := parseTime(startTimeStr)
		if err != nil {
			return nil, fmt.Errorf("parse start_time %q: %w", startTimeStr, err)
		}
		rec.StartTime = startTime.Unix()

		if endTimeStr.Valid {
			if t, err := parseTime(endTimeStr.String); err == nil {
				v := t.Unix()
				rec.EndTime = &v
			}
		}
		if lastReadingStr.Valid {
			if t, err := parseTime(lastReadingStr.String); err == nil {
				v := t.Unix()
				rec.LastReadingTime = &v
			}
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

func (r *Repository) UpsertPatient(ctx context.Context, p models.Patient) error {
	query := `INSERT OR REPLACE INTO patients (id, name, ward, bed_id, gender, age, admitted_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.Ward, p.BedID, p.Gender, p.Age, formatTime(p.AdmittedAt))
	return err
}

func (r *Repository) GetPatientByID(ctx context.Context, id string) (models.Patient, error) {
	query := `SELECT id, name, ward, bed_id, gender, age, admitted_at FROM patients WHERE id = ?`
	var p models.Patient
	var ward, bed, gender, admitted sql.NullString
	var age sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &ward, &bed, &gender, &age, &admitted)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Patient{}, fmt.Errorf("patient %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Patient{}, err
	}
	p.Ward, p.BedID, p.Gender = ward.String, bed.String, gender.String
	p.Age = int(age.Int64)
	if admitted.Valid {
		if t, err := parseTime(admitted.String); err == nil {
			p.AdmittedAt = t
		}
	}
	return p, nil
}

func (r *Repository) UpsertDevice(ctx context.Context, d models.DeviceDescriptor) error {
	query := `INSERT OR REPLACE INTO devices (id, patient_id, device_type, name, connected) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, d.ID, d.PatientID, d.DeviceType, d.Name, d.Connected)
	return err
}

func (r *Repository) GetPatientDevices(ctx context.Context, patientID string) ([]models.DeviceDescriptor, error) {
	query := `SELECT id, patient_id, device_type, name, connected FROM devices WHERE patient_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := []models.DeviceDescriptor{}
	for rows.Next() {
		var d models.DeviceDescriptor
		var name sql.NullString
		if err := rows.Scan(&d.ID, &d.PatientID, &d.DeviceType, &name, &d.Connected); err != nil {
			return nil, err
		}
		d.Name = name.String
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *Repository) SetDeviceConnected(ctx context.Context, deviceID string, connected bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE devices SET connected = ? WHERE id = ?`, connected, deviceID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	return nil
}

// SaveReading ignores a reading whose id is already stored.
func (r *Repository) SaveReading(ctx context.Context, v models.VitalReading) error {
	query := `INSERT OR IGNORE INTO vital_readings (id, patient_id, device_id, recorded_at, heart_rate, bp_systolic, bp_diastolic, oxygen_saturation, temperature_celsius, respiratory_rate, glucose, notes)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		v.ID, v.PatientID, v.DeviceID, v.Timestamp.UnixMilli(),
		nullFloat(v.HeartRate), nullFloat(v.BPSystolic), nullFloat(v.BPDiastolic),
		nullFloat(v.OxygenSaturation), nullFloat(v.TemperatureCelsius),
		nullFloat(v.RespiratoryRate), nullFloat(v.Glucose), v.Notes,
	)
	return err
}

// GetVitalStatistics returns the latest limit readings of a patient, oldest
// first.
func (r *Repository) GetVitalStatistics(ctx context.Context, patientID string, limit int) ([]models.VitalReading, error) {
	query := `SELECT id, patient_id, device_id, recorded_at, heart_rate, bp_systolic, bp_diastolic, oxygen_saturation, temperature_celsius, respiratory_rate, glucose, notes
    FROM vital_readings WHERE patient_id = ? ORDER BY recorded_at DESC, rowid DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := []models.VitalReading{}
	for rows.Next() {
		var v models.VitalReading
		var deviceID, notes sql.NullString
		var recordedAt int64
		var hr, sys, dia, spo2, temp, rr, glucose sql.NullFloat64
		if err := rows.Scan(&v.ID, &v.PatientID, &deviceID, &recordedAt, &hr, &sys, &dia, &spo2, &temp, &rr, &glucose, &notes); err != nil {
			return nil, err
		}
		v.DeviceID, v.Notes = deviceID.String, notes.String
		v.Timestamp = time.UnixMilli(recordedAt).UTC()
		v.HeartRate, v.BPSystolic, v.BPDiastolic = floatPtr(hr), floatPtr(sys), floatPtr(dia)
		v.OxygenSaturation, v.TemperatureCelsius = floatPtr(spo2), floatPtr(temp)
		v.RespiratoryRate, v.Glucose = floatPtr(rr), floatPtr(glucose)
		readings = append(readings, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
	return readings, nil
}

func (r *Repository) SaveAlert(ctx context.Context, a models.AlertRecord) error {
	kinds := make([]string, len(a.Metrics))
	for i, k := range a.Metrics {
		kinds[i] = string(k)
	}
	query := `INSERT OR REPLACE INTO alerts (id, patient_id, title, message, severity, metrics, alert_key, created_at, acknowledged) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, a.ID, a.PatientID, a.Title, a.Message, string(a.Severity),
		strings.Join(kinds, ","), a.Key, a.CreatedAt.UnixMilli(), a.Acknowledged)
	return err
}

func (r *Repository) AcknowledgeAlert(ctx context.Context, alertID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE alerts SET acknowledged = 1 WHERE id = ?`, alertID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	return nil
}

// GetAlerts returns a patient's alerts, newest first.
func (r *Repository) GetAlerts(ctx context.Context, patientID string, limit int) ([]models.AlertRecord, error) {
	query := `SELECT id, patient_id, title, message, severity, metrics, alert_key, created_at, acknowledged FROM alerts WHERE patient_id = ? ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.AlertRecord
	for rows.Next() {
		var a models.AlertRecord
		var severity string
		var kinds, key sql.NullString
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.PatientID, &a.Title, &a.Message, &severity, &kinds, &key, &createdAt, &a.Acknowledged); err != nil {
			return nil, err
		}
		a.Severity = models.Severity(severity)
		a.Key = key.String
		a.CreatedAt = time.UnixMilli(createdAt).UTC()
		if kinds.String != "" {
			for _, k := range strings.Split(kinds.String, ",") {
				a.Metrics = append(a.Metrics, models.MetricKind(k))
			}
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *Repository) Close() {
	r.db.Close()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
