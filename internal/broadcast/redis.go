// Package broadcast fans committed batch tokens out to other processes that
// share the same document store, so their subscriptions refresh without
// polling.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/Paintersrp/lifelog/internal/txn"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "lifelog:commits"

// Message is published once per committed batch.
type Message struct {
	Token       string   `json:"token"`
	Origin      string   `json:"origin"`
	Collections []string `json:"collections"`
}

// Redis publishes and receives commit announcements over Redis pub/sub.
type Redis struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

// NewRedis connects to redisURL and verifies the connection.
func NewRedis(redisURL, channel, origin string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisWithClient(client, channel, origin, logger), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, channel, origin string, logger *slog.Logger) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, channel: channel, origin: origin, logger: logger}
}

func (r *Redis) headKey() string { return r.channel + ":head" }

// Announce publishes tok and records it as the newest known token.
func (r *Redis) Announce(ctx context.Context, tok txn.Token, collections []string) error {
	payload, err := json.Marshal(Message{Token: tok.ID, Origin: r.origin, Collections: collections})
	if err != nil {
		return fmt.Errorf("marshal announcement: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.headKey(), tok.ID, 0)
	pipe.Publish(ctx, r.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("announce %s: %w", tok.ID, err)
	}
	return nil
}

// Head returns the newest announced token, or "" when nothing was announced.
func (r *Redis) Head(ctx context.Context) (string, error) {
	tok, err := r.client.Get(ctx, r.headKey()).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read head token: %w", err)
	}
	return tok, nil
}

// Listen subscribes to the announcement channel. The subscription is active
// when Listen returns.
func (r *Redis) Listen(ctx context.Context) (*Listener, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	return &Listener{pubsub: pubsub, origin: r.origin, logger: r.logger}, nil
}

// Ping checks if Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Listener delivers announcements made by other origins.
type Listener struct {
	pubsub *redis.PubSub
	origin string
	logger *slog.Logger
}

// Run calls fn for every foreign announcement until ctx is done or the
// listener is closed.
func (l *Listener) Run(ctx context.Context, fn func(Message)) error {
	ch := l.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				l.logger.Warn("dropping malformed announcement", "error", err)
				continue
			}
			if msg.Origin == l.origin {
				continue
			}
			fn(msg)
		}
	}
}

// Close unsubscribes.
func (l *Listener) Close() error {
	return l.pubsub.Close()
}
