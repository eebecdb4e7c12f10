package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"vitals-monitor/internal/errs"
	"vitals-monitor/internal/models"
	"vitals-monitor/internal/outcome"
	"vitals-monitor/internal/scheduler"
)

const DefaultHousekeepingInterval = time.Minute

// SessionStore persists the monitoring lifecycle of each patient.
type SessionStore interface {
	StartMonitoring(ctx context.Context, patientID, facilityID string) error
	StopMonitoring(ctx context.Context, patientID string) error
	BatchUpdateLastReadingTime(ctx context.Context, updates map[string]int64) error
	GetActiveSessions(ctx context.Context) ([]models.MonitoringRecord, error)
}

// Factory builds an unstarted controller for a patient.
type Factory func(patientID string) *Controller

// Manager owns the controllers of every monitored patient.
type Manager struct {
	store    SessionStore
	factory  Factory
	sched    scheduler.Scheduler
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Controller
	flushed  map[string]time.Time
}

func NewManager(store SessionStore, factory Factory, sched scheduler.Scheduler, interval time.Duration, logger *zap.Logger) *Manager {
	if sched == nil {
		sched = scheduler.New()
	}
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}
	return &Manager{
		store:    store,
		factory:  factory,
		sched:    sched,
		interval: interval,
		logger:   logger,
		sessions: make(map[string]*Controller),
		flushed:  make(map[string]time.Time),
	}
}

// Restore restarts every session the store still marks as running and
// returns how many came up.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	records, err := m.store.GetActiveSessions(ctx)
	if err != nil {
		return 0, errs.Source("session.restore", err)
	}
	restored := 0
	for _, rec := range records {
		if res := m.launch(ctx, rec.PatientID); res.IsError() {
			m.logger.Warn("Could not restore session",
				zap.String("patient_id", rec.PatientID),
				zap.String("error", res.ErrorMessage()),
			)
			continue
		}
		restored++
	}
	m.logger.Info("Service restored", zap.Int("sessions", restored), zap.Int("records", len(records)))
	return restored, nil
}

// StartSession records the session as running and starts its controller.
// Starting a patient that is already monitored succeeds without effect.
func (m *Manager) StartSession(ctx context.Context, patientID, facilityID string) outcome.Outcome[outcome.Unit] {
	if patientID == "" {
		err := errs.Validation("session.start", "patient id is empty")
		return outcome.Error[outcome.Unit](err.Error(), err)
	}
	if m.live(patientID) {
		return outcome.Success(outcome.Unit{})
	}
	if err := m.store.StartMonitoring(ctx, patientID, facilityID); err != nil {
		wrapped := errs.Source("session.start", err)
		m.logger.Error("DB error starting monitoring", zap.String("patient_id", patientID), zap.Error(err))
		return outcome.Error[outcome.Unit](wrapped.Error(), wrapped)
	}

	res := m.launch(ctx, patientID)
	if res.IsError() {
		if err := m.store.StopMonitoring(ctx, patientID); err != nil {
			m.logger.Error("DB error stopping failed session", zap.String("patient_id", patientID), zap.Error(err))
		}
		return res
	}
	m.logger.Info("Started monitoring patient", zap.String("patient_id", patientID))
	return res
}

func (m *Manager) live(patientID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[patientID]
	if !ok {
		return false
	}
	st := c.State()
	return st == StateInactive || st == StateInitializing || st == StateActive
}

func (m *Manager) launch(ctx context.Context, patientID string) outcome.Outcome[outcome.Unit] {
	m.mu.Lock()
	if c, ok := m.sessions[patientID]; ok {
		if st := c.State(); st == StateInactive || st == StateInitializing || st == StateActive {
			m.mu.Unlock()
			return outcome.Success(outcome.Unit{})
		}
	}
	c := m.factory(patientID)
	m.sessions[patientID] = c
	m.mu.Unlock()

	return c.Start(ctx)
}

func (m *Manager) StopSession(ctx context.Context, patientID string) error {
	c, ok := m.Session(patientID)
	if !ok {
		return errs.Validation("session.stop", "patient %s is not monitored", patientID)
	}
	c.Stop()
	if err := m.store.StopMonitoring(ctx, patientID); err != nil {
		m.logger.Error("DB error stopping monitoring", zap.String("patient_id", patientID), zap.Error(err))
		return errs.Source("session.stop", err)
	}
	m.logger.Info("Stopped monitoring patient", zap.String("patient_id", patientID))
	return nil
}

func (m *Manager) Acknowledge(ctx context.Context, patientID, alertID string) error {
	c, ok := m.Session(patientID)
	if !ok {
		return errs.Validation("session.acknowledge", "patient %s is not monitored", patientID)
	}
	return c.Acknowledge(ctx, alertID)
}

func (m *Manager) Session(patientID string) (*Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[patientID]
	return c, ok
}

// Snapshots are sorted by patient id.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	controllers := make([]*Controller, 0, len(m.sessions))
	for _, c := range m.sessions {
		controllers = append(controllers, c)
	}
	m.mu.RUnlock()

	out := make([]Snapshot, 0, len(controllers))
	for _, c := range controllers {
		out = append(out, c.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatientID < out[j].PatientID })
	return out
}

// Prune forgets stopped and failed sessions and returns how many it removed.
func (m *Manager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	pruned := 0
	for id, c := range m.sessions {
		if st := c.State(); st == StateStopped || st == StateFailed {
			delete(m.sessions, id)
			delete(m.flushed, id)
			pruned++
		}
	}
	return pruned
}

// StopAll stops every controller but leaves the stored sessions running so
// that Restore picks them up on the next boot.
func (m *Manager) StopAll() {
	m.mu.RLock()
	controllers := make([]*Controller, 0, len(m.sessions))
	for _, c := range m.sessions {
		controllers = append(controllers, c)
	}
	m.mu.RUnlock()

	for _, c := range controllers {
		c.Stop()
	}
}

func (m *Manager) RunHousekeepingCycle(ctx context.Context) {
	m.logger.Info("Housekeeping cycle started", zap.Duration("interval", m.interval))
	h := m.sched.Every(m.interval, func() { m.Housekeep(ctx) })
	<-ctx.Done()
	h.Cancel()
	m.logger.Info("Housekeeping cycle stopping")
}

// HousekeepingReport summarizes one housekeeping pass.
type HousekeepingReport struct {
	Flushed int
	Pruned  int
	Table   string
}

// Housekeep flushes new last-reading times to the store, prunes finished
// sessions and logs a status table.
func (m *Manager) Housekeep(ctx context.Context) HousekeepingReport {
	snaps := m.Snapshots()

	updates := make(map[string]int64)
	m.mu.RLock()
	for _, s := range snaps {
		if s.LastReadingAt.IsZero() {
			continue
		}
		if last, ok := m.flushed[s.PatientID]; ok && !s.LastReadingAt.After(last) {
			continue
		}
		updates[s.PatientID] = s.LastReadingAt.Unix()
	}
	m.mu.RUnlock()

	flushed := 0
	if len(updates) > 0 {
		if err := m.store.BatchUpdateLastReadingTime(ctx, updates); err != nil {
			m.logger.Error("Housekeeping DB update failed", zap.Error(err))
		} else {
			flushed = len(updates)
			m.mu.Lock()
			for _, s := range snaps {
				if _, ok := updates[s.PatientID]; ok {
					m.flushed[s.PatientID] = s.LastReadingAt
				}
			}
			m.mu.Unlock()
		}
	}

	pruned := m.Prune()

	var report strings.Builder
	report.WriteString(fmt.Sprintf("%-15s | %-12s | %-8s | %-6s | %-8s\n", "Patient", "State", "Readings", "Risk", "Unacked"))
	report.WriteString(strings.Repeat("-", 62) + "\n")
	if len(snaps) == 0 {
		report.WriteString("No active patients being monitored.\n")
	}
	for _, s := range snaps {
		riskLevel := "-"
		if s.Latest != nil {
			riskLevel = fmt.Sprintf("%.2f", s.Latest.RiskLevel)
		}
		report.WriteString(fmt.Sprintf("%-15s | %-12s | %-8d | %-6s | %-8d\n",
			s.PatientID, s.State, len(s.History), riskLevel, len(s.Unacknowledged)))
	}

	m.logger.Info("Housekeeping report",
		zap.Int("sessions", len(snaps)),
		zap.Int("flushed", flushed),
		zap.Int("pruned", pruned),
		zap.String("table", "\n"+report.String()),
	)
	return HousekeepingReport{Flushed: flushed, Pruned: pruned, Table: report.String()}
}
