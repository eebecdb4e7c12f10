package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"vitals-monitor/internal/errs"
	"vitals-monitor/internal/models"
	"vitals-monitor/internal/outcome"
)

// WebhookSink posts alerts to an HTTP endpoint with a bearer token.
type WebhookSink struct {
	client   *resty.Client
	endpoint string
	logger   *zap.Logger
}

type webhookPayload struct {
	Critical bool `json:"critical"`
	AlertMessage
}

func NewWebhookSink(endpoint, apiKey string, timeout time.Duration, retries int, logger *zap.Logger) *WebhookSink {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &WebhookSink{client: client, endpoint: endpoint, logger: logger}
}

func (s *WebhookSink) SendAlert(ctx context.Context, a models.AlertRecord) outcome.Outcome[outcome.Unit] {
	return s.post(ctx, webhookPayload{AlertMessage: AlertMessage{Alert: a}})
}

func (s *WebhookSink) SendCriticalAlert(ctx context.Context, a models.AlertRecord, assessment models.RiskAssessment) outcome.Outcome[outcome.Unit] {
	return s.post(ctx, webhookPayload{Critical: true, AlertMessage: AlertMessage{Alert: a, Assessment: &assessment}})
}

func (s *WebhookSink) post(ctx context.Context, body webhookPayload) outcome.Outcome[outcome.Unit] {
	const op = "notify.webhook"
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(s.endpoint)
	if err != nil {
		s.logger.Error("Webhook call failed",
			zap.String("alert_id", body.Alert.ID),
			zap.Error(err),
		)
		return outcome.FromError(outcome.Unit{}, errs.Dispatch(op, err))
	}
	if resp.IsError() {
		s.logger.Error("Webhook returned non-success status",
			zap.String("alert_id", body.Alert.ID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return outcome.FromError(outcome.Unit{}, errs.Dispatch(op, fmt.Errorf("webhook returned %s", resp.Status())))
	}

	s.logger.Info("Alert sent to webhook",
		zap.String("alert_id", body.Alert.ID),
		zap.Int("status_code", resp.StatusCode()),
	)
	return outcome.Success(outcome.Unit{})
}
