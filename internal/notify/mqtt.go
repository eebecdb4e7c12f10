// Package notify holds the notification sinks alerts are delivered through.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"vitals-monitor/internal/errs"
	"vitals-monitor/internal/models"
	"vitals-monitor/internal/outcome"
)

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// AlertMessage is the JSON published for every alert.
type AlertMessage struct {
	Alert      models.AlertRecord     `json:"alert"`
	Assessment *models.RiskAssessment `json:"assessment,omitempty"`
}

type MQTTSink struct {
	client      Publisher
	topicPrefix string
	timeout     time.Duration
	logger      *zap.Logger
}

func NewMQTTSink(client Publisher, topicPrefix string, timeout time.Duration, logger *zap.Logger) *MQTTSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTSink{client: client, topicPrefix: topicPrefix, timeout: timeout, logger: logger}
}

// AlertTopic is where warnings for a patient are published.
func (s *MQTTSink) AlertTopic(patientID string) string {
	return fmt.Sprintf("%s/%s", s.topicPrefix, patientID)
}

// CriticalTopic is where critical alerts for a patient are published.
func (s *MQTTSink) CriticalTopic(patientID string) string {
	return fmt.Sprintf("%s/critical/%s", s.topicPrefix, patientID)
}

func (s *MQTTSink) SendAlert(ctx context.Context, a models.AlertRecord) outcome.Outcome[outcome.Unit] {
	return s.publish(ctx, s.AlertTopic(a.PatientID), AlertMessage{Alert: a})
}

func (s *MQTTSink) SendCriticalAlert(ctx context.Context, a models.AlertRecord, assessment models.RiskAssessment) outcome.Outcome[outcome.Unit] {
	return s.publish(ctx, s.CriticalTopic(a.PatientID), AlertMessage{Alert: a, Assessment: &assessment})
}

func (s *MQTTSink) publish(ctx context.Context, topic string, msg AlertMessage) outcome.Outcome[outcome.Unit] {
	const op = "notify.mqtt"
	payload, err := json.Marshal(msg)
	if err != nil {
		return outcome.FromError(outcome.Unit{}, errs.Dispatch(op, err))
	}

	token := s.client.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return outcome.FromError(outcome.Unit{}, errs.Dispatch(op, ctx.Err()))
	case <-time.After(s.timeout):
		return outcome.FromError(outcome.Unit{}, errs.Dispatch(op, fmt.Errorf("publish to %s timed out after %s", topic, s.timeout)))
	}
	if err := token.Error(); err != nil {
		return outcome.FromError(outcome.Unit{}, errs.Dispatch(op, fmt.Errorf("publish to %s: %w", topic, err)))
	}

	s.logger.Debug("Alert published",
		zap.String("topic", topic),
		zap.String("alert_id", msg.Alert.ID),
	)
	return outcome.Success(outcome.Unit{})
}
