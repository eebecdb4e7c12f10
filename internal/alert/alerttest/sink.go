// Package alerttest provides a recording alert.Sink for tests.
package alerttest

import (
	"context"
	"errors"
	"sync"

	"vitals-monitor/internal/models"
	"vitals-monitor/internal/outcome"
)

// Call is one recorded sink invocation.
type Call struct {
	Critical   bool
	Alert      models.AlertRecord
	Assessment models.RiskAssessment
}

// Sink records every call. When Fail is set each call returns an error
// outcome.
type Sink struct {
	mu    sync.Mutex
	calls []Call
	Fail  bool
}

func (s *Sink) SendAlert(_ context.Context, a models.AlertRecord) outcome.Outcome[outcome.Unit] {
	return s.record(Call{Alert: a})
}

func (s *Sink) SendCriticalAlert(_ context.Context, a models.AlertRecord, assessment models.RiskAssessment) outcome.Outcome[outcome.Unit] {
	return s.record(Call{Critical: true, Alert: a, Assessment: assessment})
}

func (s *Sink) record(c Call) outcome.Outcome[outcome.Unit] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	if s.Fail {
		return outcome.Error[outcome.Unit]("sink unavailable", errors.New("sink unavailable"))
	}
	return outcome.Success(outcome.Unit{})
}

func (s *Sink) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
