package notify

import (
	"context"

	"vitals-monitor/internal/errs"
	"vitals-monitor/internal/models"
	"vitals-monitor/internal/outcome"
)

type AlertSaver interface {
	SaveAlert(ctx context.Context, a models.AlertRecord) error
}

// StoreSink keeps an audit trail of every delivered alert.
type StoreSink struct {
	store AlertSaver
}

func NewStoreSink(store AlertSaver) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) SendAlert(ctx context.Context, a models.AlertRecord) outcome.Outcome[outcome.Unit] {
	if err := s.store.SaveAlert(ctx, a); err != nil {
		return outcome.FromError(outcome.Unit{}, errs.Dispatch("notify.store", err))
	}
	return outcome.Success(outcome.Unit{})
}

func (s *StoreSink) SendCriticalAlert(ctx context.Context, a models.AlertRecord, _ models.RiskAssessment) outcome.Outcome[outcome.Unit] {
	return s.SendAlert(ctx, a)
}
