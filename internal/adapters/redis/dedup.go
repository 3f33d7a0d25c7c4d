package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// NotificationDedup suppresses immediate webhook redelivery bursts with a
// SET NX + TTL. Advisory only: the entity-state guards downstream stay the
// correctness mechanism, so a redis outage just means duplicate ledger work.
type NotificationDedup struct {
	client    redis.UniversalClient
	namespace string
	log       *slog.Logger
}

func NewNotificationDedup(client redis.UniversalClient, namespace string, log *slog.Logger) *NotificationDedup {
	return &NotificationDedup{
		client:    client,
		namespace: namespace,
		log:       log,
	}
}

// FirstSeen reports whether key has not been observed within ttl. The first
// caller in a race wins the SET NX and is the one that processes.
func (d *NotificationDedup) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return ok, nil
}

func (d *NotificationDedup) key(key string) string {
	return d.namespace + ":webhook:" + key
}

type Config struct {
	Addr     string
	Password string
	// Redis logical database number
	DB int
}

func NewClient(cfg Config) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
}

func Ping(ctx context.Context, client redis.UniversalClient) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
