package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"vitals-monitor/internal/alert"
	"vitals-monitor/internal/errs"
	"vitals-monitor/internal/metrics"
	"vitals-monitor/internal/models"
	"vitals-monitor/internal/outcome"
)

// Named labels a sink for logs and metrics.
type Named struct {
	Name string
	Sink alert.Sink
}

// Fanout delivers to every sink in turn. It fails if any sink fails, after
// trying all of them. Sinks must be safe for concurrent use: calls from
// different sessions are not serialized, so a slow sink only delays the
// session that is waiting on it.
type Fanout struct {
	sinks  []Named
	logger *zap.Logger
}

func NewFanout(logger *zap.Logger, sinks ...Named) *Fanout {
	return &Fanout{sinks: sinks, logger: logger}
}

func (f *Fanout) SendAlert(ctx context.Context, a models.AlertRecord) outcome.Outcome[outcome.Unit] {
	return f.each(a, func(s alert.Sink) outcome.Outcome[outcome.Unit] {
		return s.SendAlert(ctx, a)
	})
}

func (f *Fanout) SendCriticalAlert(ctx context.Context, a models.AlertRecord, assessment models.RiskAssessment) outcome.Outcome[outcome.Unit] {
	return f.each(a, func(s alert.Sink) outcome.Outcome[outcome.Unit] {
		return s.SendCriticalAlert(ctx, a, assessment)
	})
}

func (f *Fanout) each(a models.AlertRecord, send func(alert.Sink) outcome.Outcome[outcome.Unit]) outcome.Outcome[outcome.Unit] {
	var failed []string
	var causes []error
	for _, n := range f.sinks {
		res := send(n.Sink)
		if !res.IsError() {
			continue
		}
		metrics.DeliveryFailures.WithLabelValues(n.Name).Inc()
		f.logger.Warn("Sink delivery failed",
			zap.String("sink", n.Name),
			zap.String("alert_id", a.ID),
			zap.String("error", res.ErrorMessage()),
		)
		failed = append(failed, n.Name)
		causes = append(causes, res.Err())
	}
	if len(failed) > 0 {
		err := errs.Dispatch("notify.fanout", fmt.Errorf("sinks failed [%s]: %w", strings.Join(failed, ", "), errors.Join(causes...)))
		return outcome.FromError(outcome.Unit{}, err)
	}
	return outcome.Success(outcome.Unit{})
}
