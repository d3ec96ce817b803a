package kv

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
)

// subscriberBuffer is how many undelivered messages a memory subscription
// holds before further publishes to it are dropped.
const subscriberBuffer = 64

// Memory is an in-memory Store implementation with fan-out pub/sub.
// It is safe for concurrent use and intended primarily for testing.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]string
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]string),
		subs: make(map[string]map[*memorySubscription]struct{}),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	v, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

// Keys matches with path.Match, which agrees with Redis globbing for the
// '*', '?' and '[...]' forms used on this keyspace. Keys are sorted.
func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	m.mu.RLock()
	keys := make([]string, 0)
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) MGet(_ context.Context, keys []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(keys))
	for i, k := range keys {
		v, ok := m.data[k]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, k)
		}
		out[i] = v
	}
	return out, nil
}

// Publish never blocks; a subscriber whose buffer is full misses the message.
func (m *Memory) Publish(_ context.Context, channel, payload string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg := Message{Channel: channel, Payload: payload}
	for sub := range m.subs[channel] {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, channel string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	sub := &memorySubscription{
		store:   m,
		channel: channel,
		ch:      make(chan Message, subscriberBuffer),
		done:    make(chan struct{}),
	}
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[*memorySubscription]struct{})
	}
	m.subs[channel][sub] = struct{}{}
	return sub, nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

// Close ends every open subscription.
func (m *Memory) Close() error {
	m.mu.Lock()
	var all []*memorySubscription
	for _, set := range m.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	m.closed = true
	m.mu.Unlock()
	for _, sub := range all {
		_ = sub.Close()
	}
	return nil
}

// Subscribers returns the number of open subscriptions on channel.
func (m *Memory) Subscribers(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[channel])
}

type memorySubscription struct {
	store   *Memory
	channel string
	ch      chan Message
	done    chan struct{}
	once    sync.Once
}

func (s *memorySubscription) Receive(ctx context.Context) (Message, error) {
	select {
	case msg := <-s.ch:
		return msg, nil
	case <-s.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.store.mu.Lock()
		delete(s.store.subs[s.channel], s)
		s.store.mu.Unlock()
		close(s.done)
	})
	return nil
}
