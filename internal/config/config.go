package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string

	KafkaBrokers  string
	VitalsTopic   string
	ConsumerGroup string

	MQTTBroker         string
	MQTTClientID       string
	MQTTUsername       string
	MQTTPassword       string
	MQTTVitalsTopic    string
	MQTTStartTopic     string
	MQTTActionTopic    string
	MQTTAlertPrefix    string
	MQTTPublishTimeout time.Duration

	DBPath string

	// RedisAddr enables the redis alert-window store; empty keeps windows in memory.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
	RedisWindowTTL time.Duration

	WebhookEndpoint string
	WebhookAPIKey   string
	WebhookTimeout  time.Duration
	WebhookRetries  int

	MetricsAddr string

	HistorySize          int
	TrendWindow          int
	AlertCooldown        time.Duration
	AlertWindowSize      int
	AlertRetention       time.Duration
	InitTimeout          time.Duration
	PollInterval         time.Duration
	WindowSaveDelay      time.Duration
	HousekeepingInterval time.Duration

	PerfInterval           time.Duration
	PerfMaxSamples         int
	PerfFrameBudget        time.Duration
	PerfJankPercent        float64
	PerfOperationThreshold time.Duration
	PerfOptimizeOnBreach   bool

	LogLevel     string
	LogFile      string
	LogToConsole bool
}

func LoadConfig() *Config {
	err := godotenv.Load() // Looks for ".env" in the current directory
	if err != nil {
		log.Println("No .env file found, using environment variables or default values")
	}

	return &Config{
		ServiceName: getEnv("SERVICE_NAME", "vitals-monitor"),

		KafkaBrokers:  getEnv("KAFKA_BROKERS", "localhost:9092"),
		VitalsTopic:   getEnv("VITALS_TOPIC", "patient-vitals-data-topic"),
		ConsumerGroup: getEnv("CONSUMER_GROUP", "vitals_monitor"),

		MQTTBroker:         getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID:       getEnv("MQTT_CLIENT_ID", "VitalsMonitor_local"),
		MQTTUsername:       getEnv("MQTT_USERNAME", ""),
		MQTTPassword:       getEnv("MQTT_PASSWORD", ""),
		MQTTVitalsTopic:    getEnv("MQTT_VITALS_TOPIC", "vitals/+/updates"),
		MQTTStartTopic:     getEnv("MQTT_START_TOPIC", "monitoring/start"),
		MQTTActionTopic:    getEnv("MQTT_ACTION_TOPIC", "monitoring/action"),
		MQTTAlertPrefix:    getEnv("MQTT_ALERT_PREFIX", "alerts"),
		MQTTPublishTimeout: getEnvAsDuration("MQTT_PUBLISH_TIMEOUT", 5*time.Second),

		DBPath: getEnv("DB_PATH", "vitals.db"),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvAsInt("REDIS_DB", 0),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "vitals:"),
		RedisWindowTTL: getEnvAsDuration("REDIS_WINDOW_TTL", 48*time.Hour),

		WebhookEndpoint: getEnv("WEBHOOK_ENDPOINT", ""),
		WebhookAPIKey:   getEnv("WEBHOOK_API_KEY", ""),
		WebhookTimeout:  getEnvAsDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		WebhookRetries:  getEnvAsInt("WEBHOOK_RETRIES", 2),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		HistorySize:          getEnvAsInt("HISTORY_SIZE", 50),
		TrendWindow:          getEnvAsInt("TREND_WINDOW", 10),
		AlertCooldown:        getEnvAsDuration("ALERT_COOLDOWN", 0),
		AlertWindowSize:      getEnvAsInt("ALERT_WINDOW_SIZE", 100),
		AlertRetention:       getEnvAsDuration("ALERT_RETENTION", 24*time.Hour),
		InitTimeout:          getEnvAsDuration("INIT_TIMEOUT", 10*time.Second),
		PollInterval:         getEnvAsDuration("POLL_INTERVAL", 0),
		WindowSaveDelay:      getEnvAsDuration("WINDOW_SAVE_DELAY", 2*time.Second),
		HousekeepingInterval: getEnvAsDuration("HOUSEKEEPING_INTERVAL", time.Minute),

		PerfInterval:           getEnvAsDuration("PERF_INTERVAL", 30*time.Second),
		PerfMaxSamples:         getEnvAsInt("PERF_MAX_SAMPLES", 100),
		PerfFrameBudget:        getEnvAsDuration("PERF_FRAME_BUDGET", 16*time.Millisecond),
		PerfJankPercent:        getEnvAsFloat("PERF_JANK_PERCENT", 5),
		PerfOperationThreshold: getEnvAsDuration("PERF_OPERATION_THRESHOLD", 100*time.Millisecond),
		PerfOptimizeOnBreach:   getEnvAsBool("PERF_OPTIMIZE_ON_BREACH", true),

		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFile:      getEnv("LOG_FILE", "./logs/vitals-monitor.log"),
		LogToConsole: getEnvAsBool("LOG_TO_CONSOLE", false),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsFloat(key string, fallback float64) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(getEnv(key, "")), 64)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	return strings.EqualFold(value, "true") || value == "1"
}

// getEnvAsDuration accepts Go durations ("1500ms", "2m") or bare seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
