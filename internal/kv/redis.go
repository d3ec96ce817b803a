package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// scanCount is the COUNT hint for SCAN iterations.
const scanCount = 1000

// RedisOptions configures a Redis-backed Store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// ClientName is reported by CLIENT LIST; empty leaves it unset.
	ClientName string
}

// Redis is a Store backed by a go-redis client. Each Redis owns its own
// connection pool; the service builds one for request traffic and another for
// subscriptions so the two never queue behind each other.
type Redis struct {
	client *redis.Client
}

var _ Store = (*Redis)(nil)

// NewRedis creates a Redis store. It does not dial; call Ping to verify.
func NewRedis(opts RedisOptions) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:       opts.Addr,
			Password:   opts.Password,
			DB:         opts.DB,
			ClientName: opts.ClientName,
		}),
	}
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Keys walks the keyspace with SCAN so a large namespace does not block the
// server the way KEYS would. SCAN may repeat keys; duplicates are dropped.
func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	keys := make([]string, 0)
	it := r.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for it.Next(ctx) {
		k := it.Val()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	return keys, nil
}

func (r *Redis) MGet(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return []string{}, nil
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, keys[i])
		}
		out[i] = s
	}
	return out, nil
}

func (r *Redis) Publish(ctx context.Context, channel, payload string) error {
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe waits for the server to confirm the subscription before returning,
// so messages published afterwards are guaranteed to be delivered.
//
// go-redis reconnects and resubscribes the underlying PubSub on its own, so a
// dropped connection does not surface as a Receive error; messages published
// while disconnected are lost. Receive fails only once the subscription or
// the client is closed.
func (r *Redis) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}
	return &redisSubscription{ps: ps, ch: ps.Channel()}, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

type redisSubscription struct {
	ps *redis.PubSub
	ch <-chan *redis.Message
}

func (s *redisSubscription) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case msg, ok := <-s.ch:
		if !ok {
			return Message{}, ErrClosed
		}
		return Message{Channel: msg.Channel, Payload: msg.Payload}, nil
	}
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
