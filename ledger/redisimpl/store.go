package redisimpl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"social-ledger/ledger"

	"github.com/redis/go-redis/v9"
)

// maxWatchAttempts bounds how often Update retries after losing a WATCH race.
const maxWatchAttempts = 64

func keyForRecord(key ledger.Key) string { return "record:" + string(key) }

type envelope struct {
	Version uint64 `json:"v"`
	Data    []byte `json:"d"`
}

// RedisStore keeps each record as a JSON envelope under its own key. Updates
// are optimistic WATCH/MULTI transactions; there are no multi-record
// transactions.
type RedisStore struct {
	client *redis.Client
}

var _ ledger.Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) CreateIfAbsent(ctx context.Context, key ledger.Key, data []byte) error {
	raw, err := json.Marshal(envelope{Version: 1, Data: data})
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ledger.ErrStorage, key, err)
	}
	ok, err := r.client.SetNX(ctx, keyForRecord(key), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ledger.ErrStorage, key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyExists, key)
	}
	return nil
}

func (r *RedisStore) Read(ctx context.Context, key ledger.Key) (ledger.Record, error) {
	return read(ctx, r.client, key)
}

// read works on both the client and a WATCHing transaction.
func read(ctx context.Context, c redis.Cmdable, key ledger.Key) (ledger.Record, error) {
	raw, err := c.Get(ctx, keyForRecord(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ledger.Record{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, key)
	}
	if err != nil {
		return ledger.Record{}, fmt.Errorf("%w: read %s: %v", ledger.ErrStorage, key, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ledger.Record{}, fmt.Errorf("%w: decode %s: %v", ledger.ErrStorage, key, err)
	}
	return ledger.Record{Key: key, Version: env.Version, Data: env.Data}, nil
}

func (r *RedisStore) Update(ctx context.Context, key ledger.Key, fn ledger.Mutator) error {
	rkey := keyForRecord(key)
	txf := func(tx *redis.Tx) error {
		rec, err := read(ctx, tx, key)
		if err != nil {
			return err
		}
		next, err := fn(rec.Data)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(envelope{Version: rec.Version + 1, Data: next})
		if err != nil {
			return fmt.Errorf("%w: encode %s: %v", ledger.ErrStorage, key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, raw, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, rkey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: update %s: gave up after %d attempts", ledger.ErrConflict, key, maxWatchAttempts)
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
