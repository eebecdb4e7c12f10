// Package session runs the per-patient monitoring pipeline. A Controller
// merges the device stream, broadcast updates and an optional poll into one
// serialized loop that assesses each reading and dispatches alerts.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"vitals-monitor/internal/alert"
	"vitals-monitor/internal/errs"
	"vitals-monitor/internal/metrics"
	"vitals-monitor/internal/models"
	"vitals-monitor/internal/outcome"
	"vitals-monitor/internal/perf"
	"vitals-monitor/internal/risk"
	"vitals-monitor/internal/scheduler"
	"vitals-monitor/internal/source"
	"vitals-monitor/internal/stream"
)

const (
	DefaultHistorySize     = 50
	DefaultInitTimeout     = 10 * time.Second
	DefaultWindowSaveDelay = 2 * time.Second

	// ProcessTiming names the timing sample published per processed reading.
	ProcessTiming = "session.process"
)

type State int

const (
	StateInactive State = iota
	StateInitializing
	StateActive
	StateStopped
	// StateFailed is terminal; initialization did not complete.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Config struct {
	HistorySize int
	TrendWindow int
	InitTimeout time.Duration
	// PollInterval enables polling the patient data source when positive.
	PollInterval    time.Duration
	WindowSaveDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = DefaultInitTimeout
	}
	if c.WindowSaveDelay < 0 {
		c.WindowSaveDelay = 0
	}
	return c
}

type PatientSource interface {
	GetPatientByID(ctx context.Context, id string) outcome.Outcome[models.Patient]
	GetVitalStatistics(ctx context.Context, patientID string, limit int) outcome.Outcome[[]models.VitalReading]
}

type DeviceSource interface {
	GetPatientDevices(ctx context.Context, patientID string) outcome.Outcome[[]models.DeviceDescriptor]
	ConnectToDevice(ctx context.Context, deviceID string) outcome.Outcome[outcome.Unit]
	DeviceDataStream(patientID string) *stream.Subscription[models.RawDeviceSample]
}

type BroadcastSource interface {
	Subscribe(topic string) *stream.Subscription[models.Message]
}

type ReadingStore interface {
	SaveReading(ctx context.Context, r models.VitalReading) error
}

type AlertAcknowledger interface {
	AcknowledgeAlert(ctx context.Context, alertID string) error
}

// Update is handed to the Observer after every processed reading.
type Update struct {
	PatientID      string
	Source         string
	Reading        models.VitalReading
	Assessment     models.RiskAssessment
	Alerts         []models.AlertRecord
	Unacknowledged []models.AlertRecord
}

// Observer is called on the session loop; it must not block for long.
type Observer func(Update)

// Deps are the collaborators of a Controller. Patients, Devices, Broadcast
// and Dispatcher are required.
type Deps struct {
	Patients   PatientSource
	Devices    DeviceSource
	Broadcast  BroadcastSource
	Dispatcher *alert.Dispatcher
	Windows    alert.WindowStore
	Readings   ReadingStore
	Acks       AlertAcknowledger
	Scheduler  scheduler.Scheduler
	Timings    *stream.Hub[models.MetricSample]
	Observer   Observer
	Logger     *zap.Logger
}

// Snapshot is a copy of a session's state.
type Snapshot struct {
	PatientID      string
	State          State
	Failure        string
	Patient        models.Patient
	Devices        []models.DeviceDescriptor
	History        []models.VitalReading
	Latest         *models.RiskAssessment
	Unacknowledged []models.AlertRecord
	LastReadingAt  time.Time
}

type ackRequest struct {
	alertID string
	reply   chan error
}

type Controller struct {
	patientID  string
	cfg        Config
	deps       Deps
	sched      scheduler.Scheduler
	logger     *zap.Logger
	aggregator risk.Aggregator
	debouncer  *scheduler.Debouncer

	mu            sync.RWMutex
	state         State
	failure       string
	patient       models.Patient
	devices       []models.DeviceDescriptor
	history       []models.VitalReading
	latest        *models.RiskAssessment
	window        alert.Window
	lastReadingAt time.Time
	deviceSub     *stream.Subscription[models.RawDeviceSample]
	broadcastSub  *stream.Subscription[models.Message]
	poll          scheduler.Handle
	initCancel    context.CancelFunc

	ctx      context.Context
	cancel   context.CancelFunc
	pollCh   chan models.VitalReading
	ackCh    chan ackRequest
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewController(patientID string, cfg Config, deps Deps) *Controller {
	cfg = cfg.withDefaults()
	if deps.Scheduler == nil {
		deps.Scheduler = scheduler.New()
	}
	if deps.Windows == nil {
		deps.Windows = alert.NewMemoryWindowStore()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		patientID:  patientID,
		cfg:        cfg,
		deps:       deps,
		sched:      deps.Scheduler,
		logger:     logger.With(zap.String("patient_id", patientID)),
		aggregator: risk.Aggregator{TrendWindow: cfg.TrendWindow},
		debouncer:  scheduler.NewDebouncer(deps.Scheduler, cfg.WindowSaveDelay),
		ctx:        ctx,
		cancel:     cancel,
		pollCh:     make(chan models.VitalReading, 16),
		ackCh:      make(chan ackRequest),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (c *Controller) PatientID() string { return c.patientID }

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

type initialState struct {
	patient models.Patient
	history []models.VitalReading
	devices []models.DeviceDescriptor
}

// Start subscribes to both streams, then loads the patient, recent history
// and device list within the init timeout. Any failure leaves the session
// Failed and is returned as an error outcome.
func (c *Controller) Start(ctx context.Context) outcome.Outcome[outcome.Unit] {
	initCtx, cancel := context.WithTimeout(ctx, c.cfg.InitTimeout)
	defer cancel()

	c.mu.Lock()
	if c.state != StateInactive {
		st := c.state
		c.mu.Unlock()
		return outcome.Error[outcome.Unit](fmt.Sprintf("session for %s is already %s", c.patientID, st), nil)
	}
	c.state = StateInitializing
	c.initCancel = cancel
	c.deviceSub = c.deps.Devices.DeviceDataStream(c.patientID)
	c.broadcastSub = c.deps.Broadcast.Subscribe(source.VitalsTopic(c.patientID))
	c.mu.Unlock()

	c.logger.Info("Initializing monitoring session")

	res := c.initialize(initCtx)
	if res.IsError() {
		c.fail(res.ErrorMessage())
		return outcome.Error[outcome.Unit](res.ErrorMessage(), res.Err())
	}
	loaded, _ := res.Data()
	loaded.devices = c.connectDevices(initCtx, loaded.devices)

	w, err := c.deps.Windows.LoadWindow(initCtx, c.patientID)
	if err != nil {
		c.logger.Warn("Could not load alert window, starting empty", zap.Error(err))
		w = alert.Window{}
	}

	history := loaded.history
	if len(history) > c.cfg.HistorySize {
		history = history[len(history)-c.cfg.HistorySize:]
	}

	c.mu.Lock()
	if c.state != StateInitializing {
		c.mu.Unlock()
		c.release()
		return outcome.Error[outcome.Unit](fmt.Sprintf("session for %s stopped during initialization", c.patientID), nil)
	}
	c.patient = loaded.patient
	c.devices = loaded.devices
	c.history = append([]models.VitalReading(nil), history...)
	c.window = w
	c.state = StateActive
	c.initCancel = nil
	if c.cfg.PollInterval > 0 {
		c.poll = c.sched.Every(c.cfg.PollInterval, c.pollOnce)
	}
	c.mu.Unlock()

	go c.loop()
	metrics.ActiveSessions.Inc()
	c.logger.Info("Monitoring session active",
		zap.Int("history", len(history)),
		zap.Int("devices", len(loaded.devices)),
		zap.Int("alert_window", w.Len()),
	)
	return outcome.Success(outcome.Unit{})
}

// initialize runs the loading chain on its own goroutine so that a source
// which ignores ctx still cannot hold Start past the timeout.
func (c *Controller) initialize(ctx context.Context) outcome.Outcome[initialState] {
	result := make(chan outcome.Outcome[initialState], 1)
	go func() {
		loaded := outcome.Map(c.deps.Patients.GetPatientByID(ctx, c.patientID), func(p models.Patient) initialState {
			return initialState{patient: p}
		})
		loaded = outcome.ChainContext(ctx, loaded, func(ctx context.Context, s initialState) outcome.Outcome[initialState] {
			return outcome.Map(c.deps.Patients.GetVitalStatistics(ctx, c.patientID, c.cfg.HistorySize), func(h []models.VitalReading) initialState {
				s.history = h
				return s
			})
		})
		loaded = outcome.ChainContext(ctx, loaded, func(ctx context.Context, s initialState) outcome.Outcome[initialState] {
			return outcome.Map(c.deps.Devices.GetPatientDevices(ctx, c.patientID), func(d []models.DeviceDescriptor) initialState {
				s.devices = d
				return s
			})
		})
		result <- loaded
	}()

	select {
	case res := <-result:
		return res
	case <-ctx.Done():
		err := errs.Source("session.init", fmt.Errorf("initialization of %s: %w", c.patientID, ctx.Err()))
		return outcome.Error[initialState](err.Error(), err)
	}
}

// connectDevices connects every device; a device that refuses is logged and
// left disconnected.
func (c *Controller) connectDevices(ctx context.Context, devices []models.DeviceDescriptor) []models.DeviceDescriptor {
	out := make([]models.DeviceDescriptor, len(devices))
	copy(out, devices)
	for i := range out {
		if out[i].Connected {
			continue
		}
		res := c.deps.Devices.ConnectToDevice(ctx, out[i].ID)
		if res.IsError() {
			c.logger.Warn("Device connection failed",
				zap.String("device_id", out[i].ID),
				zap.String("error", res.ErrorMessage()),
			)
			continue
		}
		out[i].Connected = true
	}
	return out
}

func (c *Controller) fail(reason string) {
	c.mu.Lock()
	failed := c.state == StateInitializing
	if failed {
		c.state = StateFailed
		c.failure = reason
	}
	c.initCancel = nil
	c.mu.Unlock()
	c.release()
	c.cancel()
	if !failed {
		return
	}
	metrics.SessionFailures.Inc()
	c.logger.Error("Monitoring session failed to start", zap.String("reason", reason))
}

// release cancels both subscriptions and the poll.
func (c *Controller) release() {
	c.mu.Lock()
	deviceSub, broadcastSub, poll := c.deviceSub, c.broadcastSub, c.poll
	c.poll = nil
	c.mu.Unlock()

	if deviceSub != nil {
		deviceSub.Cancel()
	}
	if broadcastSub != nil {
		broadcastSub.Cancel()
	}
	if poll != nil {
		poll.Cancel()
	}
}

// Stop halts processing before it returns. A reading being processed is
// allowed to finish; anything arriving later is dropped. Stop is idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	prev := c.state
	switch prev {
	case StateStopped, StateFailed:
		c.mu.Unlock()
		return
	}
	c.state = StateStopped
	if c.initCancel != nil {
		c.initCancel()
		c.initCancel = nil
	}
	c.mu.Unlock()

	c.release()
	c.stopOnce.Do(func() { close(c.stopCh) })
	if prev == StateActive {
		<-c.done
		metrics.ActiveSessions.Dec()
	}
	c.debouncer.Flush(c.patientID)
	c.cancel()
	c.logger.Info("Monitoring session stopped", zap.String("previous_state", prev.String()))
}

func (c *Controller) loop() {
	defer close(c.done)

	c.mu.RLock()
	deviceC := c.deviceSub.C()
	broadcastC := c.broadcastSub.C()
	c.mu.RUnlock()

	for {
		select {
		case <-c.stopCh:
			return
		case raw, ok := <-deviceC:
			if !ok {
				deviceC = nil
				continue
			}
			reading, err := raw.ToReading(c.sched.Now())
			if err != nil {
				c.drop("invalid", err)
				continue
			}
			c.process(reading, "device")
		case msg, ok := <-broadcastC:
			if !ok {
				broadcastC = nil
				continue
			}
			if msg.Type != models.MessageTypeVitalUpdate || msg.Reading == nil {
				c.logger.Debug("Ignoring broadcast message", zap.String("type", msg.Type))
				continue
			}
			c.process(*msg.Reading, "broadcast")
		case r := <-c.pollCh:
			c.process(r, "poll")
		case req := <-c.ackCh:
			req.reply <- c.acknowledge(req.alertID)
		}
	}
}

func (c *Controller) drop(reason string, err error) {
	metrics.ReadingsDropped.WithLabelValues(reason).Inc()
	c.logger.Warn("Reading dropped", zap.String("reason", reason), zap.Error(err))
}

func (c *Controller) process(r models.VitalReading, src string) {
	select {
	case <-c.stopCh:
		metrics.ReadingsDropped.WithLabelValues("stopped").Inc()
		return
	default:
	}

	started := time.Now()
	if r.PatientID != c.patientID {
		c.drop("invalid", errs.Validation("session.process", "reading %s belongs to patient %q", r.ID, r.PatientID))
		return
	}
	if err := models.ValidateReading(r); err != nil {
		c.drop("invalid", err)
		return
	}
	if c.seen(r.ID) {
		metrics.ReadingsDropped.WithLabelValues("duplicate").Inc()
		c.logger.Debug("Duplicate reading ignored", zap.String("reading_id", r.ID), zap.String("source", src))
		return
	}

	// Only this loop writes history and window, so they are read here without the lock.
	history := appendBounded(c.history, r, c.cfg.HistorySize)
	assessment := c.aggregator.Assess(r, history)
	alerts, window := c.deps.Dispatcher.Dispatch(c.ctx, assessment, r, c.window)
	unacked := window.Unacknowledged()

	c.mu.Lock()
	c.history = history
	c.latest = &assessment
	c.window = window
	c.lastReadingAt = c.sched.Now()
	c.mu.Unlock()

	if len(alerts) > 0 {
		c.saveWindowLater(window)
	}
	if c.deps.Readings != nil {
		if err := c.deps.Readings.SaveReading(c.ctx, r); err != nil {
			c.logger.Warn("Could not persist reading", zap.String("reading_id", r.ID), zap.Error(err))
		}
	}

	metrics.ReadingsProcessed.WithLabelValues(src).Inc()
	metrics.RiskLevel.WithLabelValues(c.patientID).Set(assessment.RiskLevel)

	if c.deps.Observer != nil {
		c.deps.Observer(Update{
			PatientID:      c.patientID,
			Source:         src,
			Reading:        r,
			Assessment:     assessment,
			Alerts:         alerts,
			Unacknowledged: unacked,
		})
	}

	elapsed := time.Since(started)
	metrics.ProcessingLatency.Observe(elapsed.Seconds())
	if c.deps.Timings != nil {
		c.deps.Timings.Publish(perf.TimingKey, models.MetricSample{
			Name:      ProcessTiming,
			ValueMs:   float64(elapsed.Microseconds()) / 1000,
			Timestamp: c.sched.Now(),
		})
	}
}

func (c *Controller) seen(id string) bool {
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].ID == id {
			return true
		}
	}
	return false
}

// appendBounded returns a new slice; the oldest readings beyond max are evicted.
func appendBounded(history []models.VitalReading, r models.VitalReading, max int) []models.VitalReading {
	start := 0
	if len(history)+1 > max {
		start = len(history) + 1 - max
	}
	out := make([]models.VitalReading, 0, len(history)-start+1)
	out = append(out, history[start:]...)
	return append(out, r)
}

func (c *Controller) pollOnce() {
	res := c.deps.Patients.GetVitalStatistics(c.ctx, c.patientID, 1)
	readings, ok := res.Data()
	if !ok {
		c.drop("source", res.Err())
		return
	}
	for _, r := range readings {
		select {
		case c.pollCh <- r:
		case <-c.stopCh:
			return
		default:
			metrics.ReadingsDropped.WithLabelValues("backpressure").Inc()
		}
	}
}

func (c *Controller) saveWindowLater(w alert.Window) {
	save := func() {
		if err := c.deps.Windows.SaveWindow(context.Background(), c.patientID, w); err != nil {
			c.logger.Warn("Could not persist alert window", zap.Error(err))
		}
	}
	if c.cfg.WindowSaveDelay == 0 {
		save()
		return
	}
	c.debouncer.Delay(c.patientID, save)
}

// Acknowledge marks an alert as handled. It is applied on the session loop.
func (c *Controller) Acknowledge(ctx context.Context, alertID string) error {
	if st := c.State(); st != StateActive {
		return errs.Validation("session.acknowledge", "session for %s is %s", c.patientID, st)
	}
	req := ackRequest{alertID: alertID, reply: make(chan error, 1)}
	select {
	case c.ackCh <- req:
	case <-c.done:
		return errs.Validation("session.acknowledge", "session for %s is stopped", c.patientID)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) acknowledge(alertID string) error {
	w, ok := c.window.Acknowledge(alertID)
	if !ok {
		return errs.Validation("session.acknowledge", "alert %s not found for patient %s", alertID, c.patientID)
	}
	c.mu.Lock()
	c.window = w
	c.mu.Unlock()

	if c.deps.Acks != nil {
		if err := c.deps.Acks.AcknowledgeAlert(c.ctx, alertID); err != nil {
			c.logger.Warn("Could not persist acknowledgement", zap.String("alert_id", alertID), zap.Error(err))
		}
	}
	c.saveWindowLater(w)
	c.logger.Info("Alert acknowledged", zap.String("alert_id", alertID))
	return nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		PatientID:      c.patientID,
		State:          c.state,
		Failure:        c.failure,
		Patient:        c.patient,
		Devices:        append([]models.DeviceDescriptor(nil), c.devices...),
		History:        append([]models.VitalReading(nil), c.history...),
		Unacknowledged: c.window.Unacknowledged(),
		LastReadingAt:  c.lastReadingAt,
	}
	if c.latest != nil {
		latest := *c.latest
		s.Latest = &latest
	}
	return s
}
