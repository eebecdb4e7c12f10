package alert

import (
	"context"
	"sync"

	"vitals-monitor/internal/models"
	"vitals-monitor/internal/outcome"
)

// Sink delivers alerts outside the process. Implementations must be safe for
// concurrent use by several sessions.
type Sink interface {
	SendAlert(ctx context.Context, alert models.AlertRecord) outcome.Outcome[outcome.Unit]
	SendCriticalAlert(ctx context.Context, alert models.AlertRecord, assessment models.RiskAssessment) outcome.Outcome[outcome.Unit]
}

// WindowStore persists a patient's alert window between sessions.
type WindowStore interface {
	LoadWindow(ctx context.Context, patientID string) (Window, error)
	SaveWindow(ctx context.Context, patientID string, w Window) error
}

// MemoryWindowStore keeps windows for the life of the process.
type MemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]Window
}

func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{windows: make(map[string]Window)}
}

func (s *MemoryWindowStore) LoadWindow(_ context.Context, patientID string) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windows[patientID], nil
}

func (s *MemoryWindowStore) SaveWindow(_ context.Context, patientID string, w Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[patientID] = w
	return nil
}
