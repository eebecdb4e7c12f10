package main

import (
	"context"
	"errors"
	"sync/atomic"

	"vitals-monitor/internal/errs"
	"vitals-monitor/internal/outcome"
	"vitals-monitor/internal/session"
)

var errNotReady = errors.New("session manager is not ready")

// lateControl lets MQTT control messages that arrive before the session
// manager is built fail cleanly instead of racing its construction.
type lateControl struct {
	manager atomic.Pointer[session.Manager]
}

func (c *lateControl) StartSession(ctx context.Context, patientID, facilityID string) outcome.Outcome[outcome.Unit] {
	m := c.manager.Load()
	if m == nil {
		err := errs.Source("control.start", errNotReady)
		return outcome.Error[outcome.Unit](err.Error(), err)
	}
	return m.StartSession(ctx, patientID, facilityID)
}

func (c *lateControl) StopSession(ctx context.Context, patientID string) error {
	m := c.manager.Load()
	if m == nil {
		return errs.Source("control.stop", errNotReady)
	}
	return m.StopSession(ctx, patientID)
}

func (c *lateControl) Acknowledge(ctx context.Context, patientID, alertID string) error {
	m := c.manager.Load()
	if m == nil {
		return errs.Source("control.acknowledge", errNotReady)
	}
	return m.Acknowledge(ctx, patientID, alertID)
}
