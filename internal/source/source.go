// Package source adapts storage and in-process streams to the collaborator
// contracts a monitoring session consumes. Every failure surfaces as an
// Outcome carrying an errs.KindSource error.
package source

import (
	"context"
	"fmt"

	"vitals-monitor/internal/errs"
	"vitals-monitor/internal/models"
	"vitals-monitor/internal/outcome"
	"vitals-monitor/internal/stream"
)

type PatientStore interface {
	GetPatientByID(ctx context.Context, id string) (models.Patient, error)
	GetVitalStatistics(ctx context.Context, patientID string, limit int) ([]models.VitalReading, error)
}

type PatientData struct {
	store PatientStore
}

func NewPatientData(store PatientStore) *PatientData {
	return &PatientData{store: store}
}

func (p *PatientData) GetPatientByID(ctx context.Context, id string) outcome.Outcome[models.Patient] {
	patient, err := p.store.GetPatientByID(ctx, id)
	if err != nil {
		return fail[models.Patient]("source.patient", err)
	}
	return outcome.Success(patient)
}

func (p *PatientData) GetVitalStatistics(ctx context.Context, patientID string, limit int) outcome.Outcome[[]models.VitalReading] {
	readings, err := p.store.GetVitalStatistics(ctx, patientID, limit)
	if err != nil {
		return fail[[]models.VitalReading]("source.vitals", err)
	}
	return outcome.Success(readings)
}

type DeviceStore interface {
	GetPatientDevices(ctx context.Context, patientID string) ([]models.DeviceDescriptor, error)
	SetDeviceConnected(ctx context.Context, deviceID string, connected bool) error
}

// Devices serves device metadata from storage and live samples from the
// device hub, keyed by patient id.
type Devices struct {
	store DeviceStore
	hub   *stream.Hub[models.RawDeviceSample]
}

func NewDevices(store DeviceStore, hub *stream.Hub[models.RawDeviceSample]) *Devices {
	return &Devices{store: store, hub: hub}
}

func (d *Devices) GetPatientDevices(ctx context.Context, patientID string) outcome.Outcome[[]models.DeviceDescriptor] {
	devices, err := d.store.GetPatientDevices(ctx, patientID)
	if err != nil {
		return fail[[]models.DeviceDescriptor]("source.devices", err)
	}
	return outcome.Success(devices)
}

func (d *Devices) ConnectToDevice(ctx context.Context, deviceID string) outcome.Outcome[outcome.Unit] {
	if err := d.store.SetDeviceConnected(ctx, deviceID, true); err != nil {
		return fail[outcome.Unit]("source.connect", err)
	}
	return outcome.Success(outcome.Unit{})
}

func (d *Devices) DeviceDataStream(patientID string) *stream.Subscription[models.RawDeviceSample] {
	return d.hub.Subscribe(patientID)
}

// Broadcast is the topic-keyed stream of update messages.
type Broadcast struct {
	hub *stream.Hub[models.Message]
}

func NewBroadcast(hub *stream.Hub[models.Message]) *Broadcast {
	return &Broadcast{hub: hub}
}

func (b *Broadcast) Subscribe(topic string) *stream.Subscription[models.Message] {
	return b.hub.Subscribe(topic)
}

func (b *Broadcast) Publish(msg models.Message) int {
	return b.hub.Publish(msg.Topic, msg)
}

// VitalsTopic is the broadcast topic carrying a patient's vital updates.
func VitalsTopic(patientID string) string {
	return fmt.Sprintf("vitals/%s/updates", patientID)
}

func fail[T any](op string, err error) outcome.Outcome[T] {
	wrapped := errs.Source(op, err)
	return outcome.Error[T](wrapped.Error(), wrapped)
}
