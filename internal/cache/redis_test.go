package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitals-monitor/internal/alert"
	"vitals-monitor/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisWindowStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisWindowStore(client, "vitals:", time.Hour)
}

func TestRedisWindowStore_MissingIsEmpty(t *testing.T) {
	_, store := setupTestRedis(t)

	w, err := store.LoadWindow(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 0, w.Len())
}

func TestRedisWindowStore_RoundTripWithTTL(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	w := alert.Window{Alerts: []models.AlertRecord{{
		ID: "a1", PatientID: "P1", Severity: models.SeverityCritical,
		Metrics: []models.MetricKind{models.MetricHeartRate}, Key: "critical:P1:HeartRate", CreatedAt: created,
	}}}

	require.NoError(t, store.SaveWindow(ctx, "P1", w))
	assert.True(t, mr.Exists("vitals:alert_window:P1"))
	assert.Equal(t, time.Hour, mr.TTL("vitals:alert_window:P1"))

	got, err := store.LoadWindow(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, "critical:P1:HeartRate", got.Alerts[0].Key)
	assert.True(t, created.Equal(got.Alerts[0].CreatedAt))

	mr.FastForward(2 * time.Hour)
	got, err = store.LoadWindow(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestRedisWindowStore_CorruptValue(t *testing.T) {
	mr, store := setupTestRedis(t)
	require.NoError(t, mr.Set("vitals:alert_window:P1", "{not json"))

	_, err := store.LoadWindow(context.Background(), "P1")
	assert.Error(t, err)
}

func TestRedisWindowStore_ServerDown(t *testing.T) {
	mr, store := setupTestRedis(t)
	mr.Close()

	err := store.SaveWindow(context.Background(), "P1", alert.Window{})
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	client.Close()

	_, err = NewRedisClient(context.Background(), "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
