package rbac

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// FlushChannel carries permission-set invalidation notices between processes.
const FlushChannel = "authz.flush"

// Invalidator flushes the shared cache and tells every process to rebind.
type Invalidator struct {
	client    redis.UniversalClient
	registrar *Registrar
	channel   string
	logger    *slog.Logger
}

// NewInvalidator builds an Invalidator. An empty channel uses FlushChannel.
func NewInvalidator(client redis.UniversalClient, registrar *Registrar, channel string, logger *slog.Logger) *Invalidator {
	if channel == "" {
		channel = FlushChannel
	}
	return &Invalidator{client: client, registrar: registrar, channel: channel, logger: logger}
}

// Invalidate forgets the cached set, rebinds locally and publishes a notice.
func (i *Invalidator) Invalidate(ctx context.Context) error {
	if err := i.registrar.FlushCache(ctx); err != nil {
		return err
	}
	if err := i.registrar.Register(ctx); err != nil {
		return err
	}
	if i.client == nil {
		return nil
	}
	stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
	return i.client.Publish(ctx, i.channel, stamp).Err()
}

// Listen subscribes to invalidation notices and re-registers on each one.
// It returns once the subscription is confirmed; delivery runs until ctx ends.
func (i *Invalidator) Listen(ctx context.Context) error {
	if i == nil || i.client == nil {
		return nil
	}
	pubsub := i.client.Subscribe(ctx, i.channel)
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
			case _, ok := <-ch:
				if !ok {
					return
				}
				if err := i.registrar.Register(ctx); err != nil && i.logger != nil {
					i.logger.Warn("authz rebind after flush", slog.Any("error", err))
				}
			}
		}
	}()
	return nil
}
