package handler

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"vitals-monitor/internal/config"
	"vitals-monitor/internal/metrics"
	"vitals-monitor/internal/models"
	"vitals-monitor/internal/outcome"
)

const controlTimeout = 15 * time.Second

// SessionControl is the part of the session manager driven by control topics.
type SessionControl interface {
	StartSession(ctx context.Context, patientID, facilityID string) outcome.Outcome[outcome.Unit]
	StopSession(ctx context.Context, patientID string) error
	Acknowledge(ctx context.Context, patientID, alertID string) error
}

// BroadcastPublisher hands parsed updates to the sessions listening on the topic.
type BroadcastPublisher interface {
	Publish(msg models.Message) int
}

// Topics names the subscriptions of the service.
type Topics struct {
	Vitals string // wildcard, e.g. vitals/+/updates
	Start  string
	Action string
}

func TopicsFromConfig(cfg *config.Config) Topics {
	return Topics{Vitals: cfg.MQTTVitalsTopic, Start: cfg.MQTTStartTopic, Action: cfg.MQTTActionTopic}
}

type vitalUpdate struct {
	Type    string               `json:"type"`
	Reading *models.VitalReading `json:"reading"`
}

// MessageHandler dispatches every MQTT message the service receives.
type MessageHandler struct {
	control   SessionControl
	broadcast BroadcastPublisher
	topics    Topics
	now       func() time.Time
	logger    *zap.Logger
}

func NewMessageHandler(control SessionControl, broadcast BroadcastPublisher, topics Topics, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{control: control, broadcast: broadcast, topics: topics, now: time.Now, logger: logger}
}

// Handle has the mqtt.MessageHandler signature.
func (h *MessageHandler) Handle(_ mqtt.Client, msg mqtt.Message) {
	h.logger.Debug("Received message", zap.String("topic", msg.Topic()), zap.Int("bytes", len(msg.Payload())))

	switch {
	case msg.Topic() == h.topics.Start:
		h.HandleStartMessage(msg.Payload())
	case msg.Topic() == h.topics.Action:
		h.HandleActionMessage(msg.Payload())
	case matchTopic(h.topics.Vitals, msg.Topic()):
		h.HandleVitalUpdate(msg.Topic(), msg.Payload())
	default:
		h.logger.Warn("Unknown topic", zap.String("topic", msg.Topic()))
	}
}

// HandleVitalUpdate returns how many sessions received the update.
func (h *MessageHandler) HandleVitalUpdate(topic string, payload []byte) int {
	metrics.ReadingsReceived.WithLabelValues("broadcast").Inc()

	var upd vitalUpdate
	if err := json.Unmarshal(payload, &upd); err != nil {
		h.logger.Warn("Error unmarshalling vital update", zap.String("topic", topic), zap.Error(err))
		metrics.ReadingsDropped.WithLabelValues("malformed").Inc()
		return 0
	}
	if upd.Type != models.MessageTypeVitalUpdate || upd.Reading == nil {
		h.logger.Debug("Ignoring broadcast message", zap.String("topic", topic), zap.String("type", upd.Type))
		metrics.ReadingsDropped.WithLabelValues("unknown_type").Inc()
		return 0
	}

	r := *upd.Reading
	if pid := wildcardSegment(h.topics.Vitals, topic); pid != "" {
		if r.PatientID == "" {
			r.PatientID = pid
		} else if r.PatientID != pid {
			h.logger.Warn("Vital update patient does not match topic",
				zap.String("topic", topic), zap.String("patient_id", r.PatientID))
			metrics.ReadingsDropped.WithLabelValues("patient_mismatch").Inc()
			return 0
		}
	}
	now := h.now()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}

	return h.broadcast.Publish(models.Message{
		Topic:      topic,
		Type:       upd.Type,
		Reading:    &r,
		ReceivedAt: now,
	})
}

func (h *MessageHandler) HandleStartMessage(payload []byte) {
	var msg models.MonitoringStartPayload
	if err := json.Unmarshal(payload, &msg); err != nil || msg.PatientID == "" {
		h.logger.Warn("Invalid monitoring start payload", zap.ByteString("payload", payload), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()

	h.control.StartSession(ctx, msg.PatientID, msg.FacilityID).
		OnError(func(f outcome.Failure) {
			h.logger.Error("Could not start monitoring", zap.String("patient_id", msg.PatientID), zap.String("error", f.Message))
		})
}

func (h *MessageHandler) HandleActionMessage(payload []byte) {
	var msg models.MonitoringActionPayload
	if err := json.Unmarshal(payload, &msg); err != nil || msg.PatientID == "" {
		h.logger.Warn("Invalid monitoring action payload", zap.ByteString("payload", payload), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()

	var err error
	switch strings.ToLower(msg.Action) {
	case "stop":
		err = h.control.StopSession(ctx, msg.PatientID)
	case "acknowledge", "ack":
		err = h.control.Acknowledge(ctx, msg.PatientID, msg.AlertID)
	default:
		h.logger.Warn("Unknown monitoring action", zap.String("action", msg.Action), zap.String("patient_id", msg.PatientID))
		return
	}
	if err != nil {
		h.logger.Error("Monitoring action failed",
			zap.String("action", msg.Action), zap.String("patient_id", msg.PatientID), zap.Error(err))
	}
}

// matchTopic implements the MQTT single-level (+) and multi-level (#) wildcards.
func matchTopic(filter, topic string) bool {
	if filter == "" {
		return false
	}
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, part := range f {
		if part == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if part != "+" && part != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}

// wildcardSegment returns the level of topic matched by the first + in filter.
func wildcardSegment(filter, topic string) string {
	if !matchTopic(filter, topic) {
		return ""
	}
	t := strings.Split(topic, "/")
	for i, part := range strings.Split(filter, "/") {
		if part == "+" && i < len(t) {
			return t[i]
		}
	}
	return ""
}

// InitializeMQTT connects and subscribes on every (re)connect.
func InitializeMQTT(cfg *config.Config, handler *MessageHandler, logger *zap.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetAutoReconnect(true)
	opts.SetDefaultPublishHandler(handler.Handle)
	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))
		subscribeToTopics(client, handler.topics, logger)
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}

func subscribeToTopics(client mqtt.Client, topics Topics, logger *zap.Logger) {
	for _, topic := range []string{topics.Vitals, topics.Start, topics.Action} {
		if topic == "" {
			continue
		}
		token := client.Subscribe(topic, 1, nil)
		token.Wait()
		if err := token.Error(); err != nil {
			logger.Error("Subscribe failed", zap.String("topic", topic), zap.Error(err))
			continue
		}
		logger.Info("Subscribed to topic", zap.String("topic", topic))
	}
}
