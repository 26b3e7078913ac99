package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"social-ledger/ledger"
	"social-ledger/ledger/inmemoryimpl"
	"social-ledger/ledger/ledgertest"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var ctx = context.Background()

func likeEvent() ledger.Event {
	return ledger.Event{
		ID:        "0190b9a0-0000-7000-8000-000000000001",
		Type:      ledger.EventPostLiked,
		Actor:     "bob",
		Subject:   "alice",
		PostKey:   ledger.PostKey("alice", 0),
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Publish(ctx, likeEvent()))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "PostLiked", fields["type"])
	assert.Equal(t, "bob", fields["actor"])
	assert.Equal(t, "alice", fields["subject"])
	assert.Equal(t, ledger.PostKey("alice", 0).String(), fields["post_key"])
}

func TestRedisSink(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sub := client.Subscribe(ctx, "ledger-events")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, NewRedisSink(client, "ledger-events").Publish(ctx, likeEvent()))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got ledger.Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, likeEvent(), got)
}

func TestRedisSinkReportsFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	assert.Error(t, NewRedisSink(client, "ledger-events").Publish(ctx, likeEvent()))
}

func TestMultiSink(t *testing.T) {
	a, b := &ledgertest.RecordingSink{}, &ledgertest.RecordingSink{Err: errors.New("down")}
	err := MultiSink{a, b}.Publish(ctx, likeEvent(), likeEvent())
	assert.ErrorContains(t, err, "down")
	assert.Len(t, a.Events(), 2)
	assert.Len(t, b.Events(), 2)
}

func TestLedgerPublishesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	sub := client.Subscribe(ctx, "ledger-events")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	store := inmemoryimpl.NewInMemoryStore()
	l := ledger.New(store, ledger.WithSink(NewRedisSink(client, "ledger-events")))
	_, _, err = l.CreateProfile(ctx, "alice", "alice_h", "Alice")
	require.NoError(t, err)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got ledger.Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, ledger.EventProfileCreated, got.Type)
	assert.Equal(t, ledger.Identity("alice"), got.Actor)
}
