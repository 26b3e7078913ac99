package ledger

import (
	"context"
	"time"
)

type Profile struct {
	Key            Key      `json:"key"`
	Owner          Identity `json:"owner"`
	Handle         string   `json:"handle"`
	Name           string   `json:"name"`
	PostCount      uint64   `json:"postCount"`
	FollowerCount  uint64   `json:"followerCount"`
	FollowingCount uint64   `json:"followingCount"`
}

type Post struct {
	Key          Key       `json:"key"`
	Author       Identity  `json:"author"`
	CreatedAt    time.Time `json:"createdAt"`
	Content      string    `json:"content"`
	LikeCount    uint64    `json:"likeCount"`
	CommentCount uint64    `json:"commentCount"`
}

// Record is a stored blob. Version starts at 1 and grows by one per update.
type Record struct {
	Key     Key
	Version uint64
	Data    []byte
}

// Mutator rewrites a record's bytes. Backends with optimistic updates may call
// it more than once, so it must not have side effects beyond its return value.
type Mutator func(data []byte) ([]byte, error)

// Store is the keyed record store the ledger writes through.
type Store interface {
	// CreateIfAbsent writes data under key or fails with ErrAlreadyExists.
	CreateIfAbsent(ctx context.Context, key Key, data []byte) error
	// Read fails with ErrNotFound for an absent key.
	Read(ctx context.Context, key Key) (Record, error)
	// Update atomically replaces the record with fn's output. If fn fails
	// nothing is written and its error is returned.
	Update(ctx context.Context, key Key, fn Mutator) error
	Ping(ctx context.Context) error
	Close() error
}

// Transactor is implemented by stores that can commit several writes as one.
// Writes made through the Store handed to fn are visible to others only after
// fn returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx Store) error) error
}
