// Package kv provides the string key/value and pub/sub substrate the service
// reads embeddings from. The package includes a Redis-backed implementation
// for production use and an in-memory implementation for testing.
package kv

import (
	"context"
	"errors"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("kv: not found")

	// ErrClosed is returned by Receive once a subscription has been closed.
	ErrClosed = errors.New("kv: subscription closed")
)

// Message is a payload delivered on a pub/sub channel.
type Message struct {
	Channel string
	Payload string
}

// Store is the interface for a string-keyed store with pub/sub.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair. Overwrites any existing value.
	Set(ctx context.Context, key, value string) error

	// Keys returns every key matching a glob pattern such as "embedding:post:*".
	Keys(ctx context.Context, pattern string) ([]string, error)

	// MGet returns values in the order of keys. If any key is missing the
	// whole call fails with ErrNotFound.
	MGet(ctx context.Context, keys []string) ([]string, error)

	// Publish sends payload to every current subscriber of channel.
	Publish(ctx context.Context, channel, payload string) error

	// Subscribe starts receiving messages published on channel.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Subscription delivers messages in publish order, at most once.
type Subscription interface {
	// Receive blocks until a message arrives, ctx is done, or the
	// subscription ends (ErrClosed).
	Receive(ctx context.Context) (Message, error)

	// Close ends the subscription.
	Close() error
}
