// Package invalidation fans cache invalidations out to other processes
// sharing the same catalog, over Redis pub/sub.
package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/catalogsync/internal/querycache"
)

// DefaultChannel is the pub/sub channel invalidations travel on.
const DefaultChannel = "catalog.invalidate"

const publishTimeout = 2 * time.Second

// Local is the in-process cache being kept in sync.
type Local interface {
	Invalidate(m querycache.Matcher) int
}

type message struct {
	Origin string `json:"origin"`
	Kind   string `json:"kind"`
	Scope  int64  `json:"scope,omitempty"`
}

// RedisBus invalidates the local cache and publishes prefix invalidations
// for peers. Messages from its own origin are ignored on receipt.
type RedisBus struct {
	local   Local
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

// NewRedisBus wires local to client. A nil client makes the bus purely local.
func NewRedisBus(local Local, client *redis.Client, channel string, logger *slog.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		local:   local,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Origin identifies this process on the channel.
func (b *RedisBus) Origin() string {
	return b.origin
}

// Invalidate applies m locally and, for prefix matchers, publishes it.
// Publish failures are logged; the local invalidation stands.
func (b *RedisBus) Invalidate(m querycache.Matcher) int {
	n := b.local.Invalidate(m)
	if b.client == nil {
		return n
	}
	p, ok := m.(querycache.Prefix)
	if !ok {
		b.logger.Debug("invalidation not published", slog.String("matcher", fmt.Sprintf("%T", m)))
		return n
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.Publish(ctx, p); err != nil {
		b.logger.Warn("publish invalidation failed", slog.String("kind", p.Kind), slog.Any("error", err))
	}
	return n
}

// Publish sends p to peers without touching the local cache.
func (b *RedisBus) Publish(ctx context.Context, p querycache.Prefix) error {
	if b.client == nil {
		return nil
	}
	raw, err := json.Marshal(message{Origin: b.origin, Kind: p.Kind, Scope: p.Scope})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("invalidation: publish: %w", err)
	}
	return nil
}

// Listen subscribes to the channel and applies peer invalidations until ctx
// is done. It returns once the subscription is confirmed.
func (b *RedisBus) Listen(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("invalidation: subscribe: %w", err)
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
				b.apply(msg.Payload)
			}
		}
	}()
	return nil
}

func (b *RedisBus) apply(payload string) {
	m, err := decode(payload)
	if err != nil {
		b.logger.Warn("invalid invalidation message", slog.Any("error", err))
		return
	}
	if m.Origin == b.origin {
		return
	}
	n := b.local.Invalidate(querycache.Prefix{Kind: m.Kind, Scope: m.Scope})
	b.logger.Debug("applied peer invalidation",
		slog.String("origin", m.Origin),
		slog.String("kind", m.Kind),
		slog.Int64("scope", m.Scope),
		slog.Int("matched", n))
}

func decode(payload string) (message, error) {
	var m message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return message{}, err
	}
	if m.Kind == "" {
		return message{}, errors.New("invalidation: message without kind")
	}
	return m, nil
}
