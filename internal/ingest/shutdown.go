package ingest

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hyperjump/postlsh/internal/kv"
	"go.uber.org/zap"
)

// ShutdownWatcher sets the stop flag when anything is published on
// kv.ChannelShutdown.
type ShutdownWatcher struct {
	store      kv.Store
	stop       *atomic.Bool
	onShutdown func()
	logger     *zap.Logger
}

// NewShutdownWatcher creates a watcher. onShutdown, if non-nil, runs once,
// right after the flag is set.
func NewShutdownWatcher(store kv.Store, stop *atomic.Bool, onShutdown func(), logger *zap.Logger) *ShutdownWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShutdownWatcher{store: store, stop: stop, onShutdown: onShutdown, logger: logger}
}

// Run blocks until the first shutdown message or until ctx is done.
func (s *ShutdownWatcher) Run(ctx context.Context) error {
	sub, err := s.store.Subscribe(ctx, kv.ChannelShutdown)
	if err != nil {
		return fmt.Errorf("shutdown watcher: %w", err)
	}
	defer sub.Close()
	s.logger.Info("shutdown watcher subscribed", zap.String("channel", kv.ChannelShutdown))

	msg, err := sub.Receive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("shutdown watcher: %w", err)
	}
	s.logger.Info("shutdown requested", zap.String("payload", msg.Payload))
	s.Trigger()
	return nil
}

// Trigger sets the stop flag and runs onShutdown if the flag was clear.
func (s *ShutdownWatcher) Trigger() {
	if s.stop.CompareAndSwap(false, true) && s.onShutdown != nil {
		s.onShutdown()
	}
}
