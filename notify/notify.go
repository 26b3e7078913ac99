// Package notify delivers ledger events to the outside world. Every sink is
// fire-and-forget: nothing is retried or persisted.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"social-ledger/ledger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(_ context.Context, events ...ledger.Event) error {
	for _, ev := range events {
		fields := []zap.Field{
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.String("actor", string(ev.Actor)),
			zap.Time("timestamp", ev.Timestamp),
		}
		if ev.Subject != "" {
			fields = append(fields, zap.String("subject", string(ev.Subject)))
		}
		if ev.PostKey != "" {
			fields = append(fields, zap.String("post_key", ev.PostKey.String()))
		}
		s.log.Info("event", fields...)
	}
	return nil
}

// RedisSink publishes every event as JSON on a pub/sub channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Publish(ctx context.Context, events ...ledger.Event) error {
	var errs []error
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode %s: %w", ev.ID, err))
			continue
		}
		if err := s.client.Publish(ctx, s.channel, raw).Err(); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", ev.ID, err))
		}
	}
	return errors.Join(errs...)
}

// MultiSink hands events to every sink and joins their errors.
type MultiSink []ledger.Sink

func (m MultiSink) Publish(ctx context.Context, events ...ledger.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
