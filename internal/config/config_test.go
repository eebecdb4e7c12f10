package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg := LoadConfig()

	assert.Equal(t, "localhost:9092", cfg.KafkaBrokers)
	assert.Equal(t, 50, cfg.HistorySize)
	assert.Equal(t, time.Duration(0), cfg.AlertCooldown)
	assert.Equal(t, 10*time.Second, cfg.InitTimeout)
	assert.Equal(t, 30*time.Second, cfg.PerfInterval)
	assert.Equal(t, 5.0, cfg.PerfJankPercent)
	assert.Empty(t, cfg.RedisAddr)
	assert.False(t, cfg.LogToConsole)
}

func TestLoadConfig_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HISTORY_SIZE", "20")
	t.Setenv("ALERT_COOLDOWN", "90s")
	t.Setenv("POLL_INTERVAL", "5")
	t.Setenv("PERF_JANK_PERCENT", "7.5")
	t.Setenv("LOG_TO_CONSOLE", "TRUE")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg := LoadConfig()
	assert.Equal(t, 20, cfg.HistorySize)
	assert.Equal(t, 90*time.Second, cfg.AlertCooldown)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 7.5, cfg.PerfJankPercent)
	assert.True(t, cfg.LogToConsole)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
}

func TestGetEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("X_INT", "ten")
	t.Setenv("X_FLOAT", "n/a")
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_BOOL", "")

	assert.Equal(t, 3, getEnvAsInt("X_INT", 3))
	assert.Equal(t, 1.5, getEnvAsFloat("X_FLOAT", 1.5))
	assert.Equal(t, time.Minute, getEnvAsDuration("X_DUR", time.Minute))
	assert.True(t, getEnvAsBool("X_BOOL", true))
	assert.Equal(t, 1500*time.Millisecond, getEnvAsDuration("X_DUR_MS_UNSET", 1500*time.Millisecond))
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
