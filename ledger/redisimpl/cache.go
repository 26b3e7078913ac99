package redisimpl

import (
	"context"
	"errors"
	"strconv"
	"time"

	"social-ledger/ledger"

	"github.com/redis/go-redis/v9"
)

const recordCacheTTL = 10 * time.Minute

func cacheKeyForRecord(key ledger.Key) string { return "cache:" + string(key) }

// setIfNewer only ever moves a cache entry forward in version, so a slow
// writer cannot put back a record that was already superseded.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'd', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// CachedStore puts a read-through Redis cache in front of a persistent store.
// All writes go to the persistent store first.
type CachedStore struct {
	client     *redis.Client
	persistent ledger.Store
}

var (
	_ ledger.Store      = (*CachedStore)(nil)
	_ ledger.Transactor = (*CachedStore)(nil)
)

func NewCachedStore(client *redis.Client, persistent ledger.Store) *CachedStore {
	return &CachedStore{
		client:     client,
		persistent: persistent,
	}
}

// remember caches rec unless a newer version is cached. When that fails the
// entry is dropped so later reads go to the persistent store.
func (c *CachedStore) remember(ctx context.Context, rec ledger.Record) {
	cacheKey := cacheKeyForRecord(rec.Key)
	err := setIfNewer.Run(ctx, c.client,
		[]string{cacheKey},
		strconv.FormatUint(rec.Version, 10), rec.Data, recordCacheTTL.Milliseconds(),
	).Err()
	if err != nil {
		_ = c.client.Del(ctx, cacheKey).Err()
	}
}

// CreateIfAbsent writes through to persistent storage and caches the record.
func (c *CachedStore) CreateIfAbsent(ctx context.Context, key ledger.Key, data []byte) error {
	if err := c.persistent.CreateIfAbsent(ctx, key, data); err != nil {
		return err
	}
	c.remember(ctx, ledger.Record{Key: key, Version: 1, Data: data})
	return nil
}

// Read serves from the cache and falls back to persistent storage on a miss.
func (c *CachedStore) Read(ctx context.Context, key ledger.Key) (ledger.Record, error) {
	fields, err := c.client.HMGet(ctx, cacheKeyForRecord(key), "v", "d").Result()
	if err == nil && len(fields) == 2 && fields[0] != nil && fields[1] != nil {
		version, vErr := strconv.ParseUint(fields[0].(string), 10, 64)
		if vErr == nil {
			return ledger.Record{Key: key, Version: version, Data: []byte(fields[1].(string))}, nil
		}
	}

	rec, err := c.persistent.Read(ctx, key)
	if err != nil {
		return rec, err
	}
	c.remember(ctx, rec)
	return rec, nil
}

// Update writes through and refreshes the cache with what was committed.
func (c *CachedStore) Update(ctx context.Context, key ledger.Key, fn ledger.Mutator) error {
	if err := c.persistent.Update(ctx, key, fn); err != nil {
		return err
	}
	rec, err := c.persistent.Read(ctx, key)
	if err != nil {
		// the update is committed; drop the entry rather than fail
		_ = c.client.Del(ctx, cacheKeyForRecord(key)).Err()
		return nil
	}
	c.remember(ctx, rec)
	return nil
}

// InTx delegates to the persistent store's transactions and refreshes the
// cache for every key written once they commit. Without a transactional
// persistent store the writes in fn are applied one by one.
func (c *CachedStore) InTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	txr, ok := c.persistent.(ledger.Transactor)
	if !ok {
		return fn(c)
	}
	var written []ledger.Key
	err := txr.InTx(ctx, func(tx ledger.Store) error {
		return fn(&recordingStore{Store: tx, written: &written})
	})
	if err != nil {
		return err
	}
	for _, key := range written {
		rec, err := c.persistent.Read(ctx, key)
		if err != nil {
			_ = c.client.Del(ctx, cacheKeyForRecord(key)).Err()
			continue
		}
		c.remember(ctx, rec)
	}
	return nil
}

// recordingStore notes which keys a transaction wrote.
type recordingStore struct {
	ledger.Store
	written *[]ledger.Key
}

func (r *recordingStore) CreateIfAbsent(ctx context.Context, key ledger.Key, data []byte) error {
	if err := r.Store.CreateIfAbsent(ctx, key, data); err != nil {
		return err
	}
	*r.written = append(*r.written, key)
	return nil
}

func (r *recordingStore) Update(ctx context.Context, key ledger.Key, fn ledger.Mutator) error {
	if err := r.Store.Update(ctx, key, fn); err != nil {
		return err
	}
	*r.written = append(*r.written, key)
	return nil
}

// Ping checks both Redis and the persistent store.
func (c *CachedStore) Ping(ctx context.Context) error {
	if c.client == nil {
		return errors.New("no redis client")
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return err
	}
	return c.persistent.Ping(ctx)
}

func (c *CachedStore) Close() error {
	return errors.Join(c.client.Close(), c.persistent.Close())
}
