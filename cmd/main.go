package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vitals-monitor/internal/alert"
	"vitals-monitor/internal/cache"
	"vitals-monitor/internal/config"
	"vitals-monitor/internal/database"
	"vitals-monitor/internal/handler"
	"vitals-monitor/internal/logger"
	"vitals-monitor/internal/models"
	"vitals-monitor/internal/notify"
	"vitals-monitor/internal/perf"
	"vitals-monitor/internal/scheduler"
	"vitals-monitor/internal/session"
	"vitals-monitor/internal/source"
	"vitals-monitor/internal/stream"
)

func main() {
	cfg := config.LoadConfig()
	log := logger.New(logger.Options{
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
		Console:     cfg.LogToConsole,
		ServiceName: cfg.ServiceName,
	})
	defer log.Sync()

	log.Info("Starting vitals monitor service...")
	logConfiguration(log, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := database.NewRepository(cfg.DBPath)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	deviceHub := stream.NewHub[models.RawDeviceSample](stream.DefaultBuffer)
	broadcastHub := stream.NewHub[models.Message](stream.DefaultBuffer)
	timingHub := stream.NewHub[models.MetricSample](stream.DefaultBuffer)
	broadcast := source.NewBroadcast(broadcastHub)

	windows := newWindowStore(ctx, cfg, log)
	sched := scheduler.New()

	// The MQTT client is needed by the alert sink before the message handler
	// exists, so the handler forwards to a manager set once it is built.
	control := &lateControl{}
	msgHandler := handler.NewMessageHandler(control, broadcast, handler.TopicsFromConfig(cfg), log.Named("mqtt"))

	mqttClient, err := handler.InitializeMQTT(cfg, msgHandler, log.Named("mqtt"))
	if err != nil {
		log.Fatal("Failed to initialize MQTT client", zap.Error(err))
	}
	defer mqttClient.Disconnect(250)

	sinks := []notify.Named{
		{Name: "store", Sink: notify.NewStoreSink(repo)},
		{Name: "mqtt", Sink: notify.NewMQTTSink(mqttClient, cfg.MQTTAlertPrefix, cfg.MQTTPublishTimeout, log.Named("notify"))},
	}
	if cfg.WebhookEndpoint != "" {
		sinks = append(sinks, notify.Named{
			Name: "webhook",
			Sink: notify.NewWebhookSink(cfg.WebhookEndpoint, cfg.WebhookAPIKey, cfg.WebhookTimeout, cfg.WebhookRetries, log.Named("notify")),
		})
	}
	sink := notify.NewFanout(log.Named("notify"), sinks...)

	dispatcher := alert.NewDispatcher(sink, alert.Options{
		Cooldown:   cfg.AlertCooldown,
		WindowSize: cfg.AlertWindowSize,
		Retention:  cfg.AlertRetention,
	}, log.Named("alert"))

	sessionCfg := session.Config{
		HistorySize:     cfg.HistorySize,
		TrendWindow:     cfg.TrendWindow,
		InitTimeout:     cfg.InitTimeout,
		PollInterval:    cfg.PollInterval,
		WindowSaveDelay: cfg.WindowSaveDelay,
	}
	patients := source.NewPatientData(repo)
	devices := source.NewDevices(repo, deviceHub)
	factory := func(patientID string) *session.Controller {
		return session.NewController(patientID, sessionCfg, session.Deps{
			Patients:   patients,
			Devices:    devices,
			Broadcast:  broadcast,
			Dispatcher: dispatcher,
			Windows:    windows,
			Readings:   repo,
			Acks:       repo,
			Scheduler:  sched,
			Timings:    timingHub,
			Logger:     log.Named("session"),
		})
	}
	manager := session.NewManager(repo, factory, sched, cfg.HousekeepingInterval, log.Named("session"))
	control.manager.Store(manager)
	if _, err := manager.Restore(ctx); err != nil {
		log.Error("Failed to restore sessions", zap.Error(err))
	}
	defer manager.StopAll()

	reporter := perf.NewReporter(perf.Config{
		Interval:           cfg.PerfInterval,
		MaxSamples:         cfg.PerfMaxSamples,
		FrameBudget:        cfg.PerfFrameBudget,
		JankPercent:        cfg.PerfJankPercent,
		OperationThreshold: cfg.PerfOperationThreshold,
		OptimizeOnBreach:   cfg.PerfOptimizeOnBreach,
	}, sink, sched, timingHub, log.Named("perf"))
	reporter.AddTrimmer("sessions", manager.Prune)
	reporter.Start()
	defer reporter.Stop()

	router := handler.NewDeviceRouter(deviceHub, log.Named("kafka"))
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutdown signal received, closing consumers...")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(3) // Kafka consumer, housekeeping, metrics

	go func() {
		defer wg.Done()
		runConsumer(ctx, cfg, cfg.VitalsTopic, log.Named("kafka"), func(value []byte) {
			router.RouteVitalsMessage(value)
		})
	}()

	go func() {
		defer wg.Done()
		manager.RunHousekeepingCycle(ctx)
	}()

	go func() {
		defer wg.Done()
		go func() {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			metricsServer.Shutdown(shutdownCtx)
		}()
		log.Info("Metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()

	log.Info("Service started successfully. Waiting for messages...")
	wg.Wait()
	log.Info("All services closed. Exiting.")
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func newWindowStore(ctx context.Context, cfg *config.Config, log *zap.Logger) alert.WindowStore {
	if cfg.RedisAddr == "" {
		log.Info("Alert windows kept in memory")
		return alert.NewMemoryWindowStore()
	}
	client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Warn("Redis unavailable, alert windows kept in memory", zap.Error(err))
		return alert.NewMemoryWindowStore()
	}
	log.Info("Alert windows stored in redis", zap.String("addr", cfg.RedisAddr))
	return cache.NewRedisWindowStore(client, cfg.RedisKeyPrefix, cfg.RedisWindowTTL)
}

func runConsumer(ctx context.Context, cfg *config.Config, topic string, log *zap.Logger, handlerFunc func([]byte)) {
	kafkaConfig := &kafka.ConfigMap{
		"bootstrap.servers": cfg.KafkaBrokers,
		"group.id":          cfg.ConsumerGroup,
		"auto.offset.reset": "latest",
	}

	consumer, err := kafka.NewConsumer(kafkaConfig)
	if err != nil {
		log.Fatal("Failed to create consumer", zap.String("topic", topic), zap.Error(err))
	}
	defer consumer.Close()

	if err := consumer.Subscribe(topic, nil); err != nil {
		log.Fatal("Failed to subscribe", zap.String("topic", topic), zap.Error(err))
	}

	log.Info("Consumer started", zap.String("topic", topic), zap.String("group_id", cfg.ConsumerGroup))

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping consumer", zap.String("topic", topic))
			return
		default:
			ev := consumer.Poll(100)
			if ev == nil {
				continue
			}
			switch e := ev.(type) {
			case *kafka.Message:
				handlerFunc(e.Value)
			case kafka.Error:
				log.Warn("Kafka error", zap.Error(e))
			}
		}
	}
}

func logConfiguration(log *zap.Logger, cfg *config.Config) {
	log.Info("Service configuration",
		zap.String("kafka_brokers", cfg.KafkaBrokers),
		zap.String("vitals_topic", cfg.VitalsTopic),
		zap.String("mqtt_broker", cfg.MQTTBroker),
		zap.String("db_path", cfg.DBPath),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.String("webhook_endpoint", cfg.WebhookEndpoint),
		zap.Bool("webhook_api_key_set", cfg.WebhookAPIKey != ""),
		zap.Bool("mqtt_password_set", cfg.MQTTPassword != ""),
		zap.Duration("alert_cooldown", cfg.AlertCooldown),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("trend_window", cfg.TrendWindow),
	)
}
