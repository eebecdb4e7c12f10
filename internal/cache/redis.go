package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vitals-monitor/internal/alert"
	"vitals-monitor/internal/metrics"
)

func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisWindowStore keeps each patient's alert window as a JSON value that
// expires after ttl of inactivity.
type RedisWindowStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisWindowStore(client *redis.Client, prefix string, ttl time.Duration) *RedisWindowStore {
	return &RedisWindowStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisWindowStore) key(patientID string) string {
	return fmt.Sprintf("%salert_window:%s", s.prefix, patientID)
}

// LoadWindow returns an empty window when none is stored.
func (s *RedisWindowStore) LoadWindow(ctx context.Context, patientID string) (alert.Window, error) {
	data, err := s.client.Get(ctx, s.key(patientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RedisOperations.WithLabelValues("get", "miss").Inc()
		return alert.Window{}, nil
	}
	if err != nil {
		metrics.RedisOperations.WithLabelValues("get", "error").Inc()
		return alert.Window{}, fmt.Errorf("failed to load alert window: %w", err)
	}
	metrics.RedisOperations.WithLabelValues("get", "hit").Inc()

	var w alert.Window
	if err := json.Unmarshal(data, &w); err != nil {
		return alert.Window{}, fmt.Errorf("failed to unmarshal alert window: %w", err)
	}
	return w, nil
}

func (s *RedisWindowStore) SaveWindow(ctx context.Context, patientID string, w alert.Window) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to marshal alert window: %w", err)
	}
	if err := s.client.Set(ctx, s.key(patientID), data, s.ttl).Err(); err != nil {
		metrics.RedisOperations.WithLabelValues("set", "error").Inc()
		return fmt.Errorf("failed to save alert window: %w", err)
	}
	metrics.RedisOperations.WithLabelValues("set", "ok").Inc()
	return nil
}
