package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/hyperjump/postlsh/internal/kv"
	"github.com/hyperjump/postlsh/internal/lsh"
)

func newIndex(t *testing.T) *lsh.Index {
	t.Helper()
	idx, err := lsh.NewSRP(4, 8, 3, 31)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func set(t *testing.T, s kv.Store, key, value string) {
	t.Helper()
	if err := s.Set(context.Background(), key, value); err != nil {
		t.Fatal(err)
	}
}

// waitFor polls cond every few milliseconds until it holds or d elapses.
func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitSubscribed(t *testing.T, m *kv.Memory, channel string) {
	t.Helper()
	waitFor(t, time.Second, channel+" subscription", func() bool { return m.Subscribers(channel) > 0 })
}

func publish(t *testing.T, s kv.Store, channel, payload string) {
	t.Helper()
	if err := s.Publish(context.Background(), channel, payload); err != nil {
		t.Fatal(err)
	}
}
