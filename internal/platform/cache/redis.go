package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// New creates a Redis client for the snapshot cache and pings it.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// QueueOptions returns the asynq connection settings for the same server.
func QueueOptions(addr string) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: addr}
}

// Check returns a readiness probe for client.
func Check(client redis.UniversalClient) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if client == nil {
			return fmt.Errorf("platform/cache: client not configured")
		}
		return client.Ping(ctx).Err()
	}
}
