package mongoimpl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"social-ledger/ledger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collName = "records"
	// maxCASAttempts bounds the optimistic retry loop of Update.
	maxCASAttempts = 64
)

type recordDoc struct {
	Key     string `bson:"_id"`
	Kind    string `bson:"kind"`
	Version int64  `bson:"version"`
	Data    []byte `bson:"data"`
}

// MongoStore keeps one document per record. Updates are compare-and-swap on
// the version field; there are no multi-record transactions.
type MongoStore struct {
	records *mongo.Collection
	client  *mongo.Client
}

var _ ledger.Store = (*MongoStore)(nil)

func ensureIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexModels := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "kind", Value: 1}},
		},
	}
	opts := options.CreateIndexes().SetMaxTime(10 * time.Second)

	_, err := collection.Indexes().CreateMany(ctx, indexModels, opts)
	if err != nil {
		return fmt.Errorf("failed to ensure indexes %w", err)
	}
	return nil
}

func NewMongoStore(ctx context.Context, mongoURL string, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURL))
	if err != nil {
		return nil, err
	}

	collection := client.Database(dbName).Collection(collName)
	if err := ensureIndexes(ctx, collection); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &MongoStore{
		records: collection,
		client:  client,
	}, nil
}

func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoStore) Close() error {
	return m.client.Disconnect(context.Background())
}

func (m *MongoStore) CreateIfAbsent(ctx context.Context, key ledger.Key, data []byte) error {
	doc := recordDoc{Key: string(key), Kind: string(key.Kind()), Version: 1, Data: data}
	_, err := m.records.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyExists, key)
	}
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ledger.ErrStorage, key, err)
	}
	return nil
}

func (m *MongoStore) Read(ctx context.Context, key ledger.Key) (ledger.Record, error) {
	var doc recordDoc
	err := m.records.FindOne(ctx, bson.M{"_id": string(key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ledger.Record{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, key)
	}
	if err != nil {
		return ledger.Record{}, fmt.Errorf("%w: read %s: %v", ledger.ErrStorage, key, err)
	}
	return ledger.Record{Key: key, Version: uint64(doc.Version), Data: doc.Data}, nil
}

// Update reads the record, applies fn and writes back only if nobody bumped
// the version in between, retrying otherwise.
func (m *MongoStore) Update(ctx context.Context, key ledger.Key, fn ledger.Mutator) error {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		rec, err := m.Read(ctx, key)
		if err != nil {
			return err
		}
		next, err := fn(rec.Data)
		if err != nil {
			return err
		}
		res, err := m.records.UpdateOne(ctx,
			bson.M{"_id": string(key), "version": int64(rec.Version)},
			bson.M{
				"$set": bson.M{"data": next},
				"$inc": bson.M{"version": 1},
			},
		)
		if err != nil {
			return fmt.Errorf("%w: update %s: %v", ledger.ErrStorage, key, err)
		}
		if res.MatchedCount == 1 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: update %s: gave up after %d attempts", ledger.ErrConflict, key, maxCASAttempts)
}
