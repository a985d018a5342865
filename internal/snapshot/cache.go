// Package snapshot caches rendered views of a running simulation in Redis.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/ledgersim/internal/bank"
)

const (
	versionKey  = "ledgersim:snapshot:version"
	bumpChannel = "ledgersim.snapshot.bump"
)

// ErrLoaderRequired indicates FetchJSON called without a loader.
var ErrLoaderRequired = errors.New("snapshot: loader required")

// Cache stores JSON snapshots keyed by run, step and cache version. A nil
// Cache or one without a client calls the loader every time.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	run    string
	group  singleflight.Group
}

// NewCache binds the cache to one simulation run.
func NewCache(client *redis.Client, ttl time.Duration, run string) *Cache {
	if run == "" {
		run = "default"
	}
	return &Cache{client: client, ttl: ttl, run: run}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) || (err == nil && ver <= 0) {
		if err := c.client.Set(ctx, versionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Key composes the versioned key for a view of the run at step.
func (c *Cache) Key(ctx context.Context, view string, step int64) (string, error) {
	run := "default"
	if c != nil {
		run = c.run
	}
	base := strings.Join([]string{"ledgersim", view, run, strconv.FormatInt(step, 10)}, ":")
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", base, ver), nil
}

// FetchJSON loads a cached value into dest or populates it using loader.
// Concurrent misses on the same key share one loader call.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return ErrLoaderRequired
	}
	if c == nil || c.client == nil {
		return load(ctx, dest, loader)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	raw, err, _ := c.group.Do(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

func load(ctx context.Context, dest any, loader func(context.Context) (any, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// BalanceSheets returns the cached balance sheets for step, building them on
// a miss.
func (c *Cache) BalanceSheets(ctx context.Context, step int64, build func(context.Context) ([]bank.BalanceSheet, error)) ([]bank.BalanceSheet, error) {
	key, err := c.Key(ctx, "balance_sheets", step)
	if err != nil {
		return nil, err
	}
	var sheets []bank.BalanceSheet
	err = c.FetchJSON(ctx, key, &sheets, func(ctx context.Context) (any, error) {
		return build(ctx)
	})
	if err != nil {
		return nil, err
	}
	return sheets, nil
}

// Bump invalidates every snapshot by incrementing the version and publishing
// the new value to other servers.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows version bumps published by other servers
// until ctx is done.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
					_ = c.client.Set(ctx, versionKey, ver, 0).Err()
					continue
				}
				_ = c.client.Incr(ctx, versionKey).Err()
			}
		}
	}()
	return nil
}
