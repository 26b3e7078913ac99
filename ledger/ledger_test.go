package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"social-ledger/ledger"
	"social-ledger/ledger/inmemoryimpl"
	"social-ledger/ledger/ledgertest"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var ctx = context.Background()

func TestLedger(t *testing.T) {
	suite.Run(t, &ledgertest.LedgerSuite{
		NewStore: func() ledger.Store { return inmemoryimpl.NewInMemoryStore() },
	})
}

// flakyStore fails the next failProfileUpdates profile updates. It hides
// InTx so the ledger applies writes one by one.
type flakyStore struct {
	ledger.Store

	mu                 sync.Mutex
	failProfileUpdates int
}

func (s *flakyStore) Update(ctx context.Context, key ledger.Key, fn ledger.Mutator) error {
	s.mu.Lock()
	fail := key.Kind() == ledger.KindProfile && s.failProfileUpdates > 0
	if fail {
		s.failProfileUpdates--
	}
	s.mu.Unlock()
	if fail {
		return fmt.Errorf("%w: connection reset", ledger.ErrStorage)
	}
	return s.Store.Update(ctx, key, fn)
}

func TestCreatePostRecoversOrphanedSlot(t *testing.T) {
	store := &flakyStore{Store: inmemoryimpl.NewInMemoryStore()}
	l := ledger.New(store)
	_, _, err := l.CreateProfile(ctx, "alice", "alice_h", "Alice")
	require.NoError(t, err)

	store.failProfileUpdates = 1
	_, _, err = l.CreatePost(ctx, "alice", "orphan")
	require.ErrorIs(t, err, ledger.ErrStorage)
	_, err = l.GetPost(ctx, ledger.PostKey("alice", 0))
	require.NoError(t, err)
	p, err := l.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, p.PostCount)

	post, _, err := l.CreatePost(ctx, "alice", "next")
	require.NoError(t, err)
	require.Equal(t, ledger.PostKey("alice", 1), post.Key)
	p, err = l.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(2), p.PostCount)

	page, next, err := l.ListPosts(ctx, "alice", "", 10)
	require.NoError(t, err)
	require.Empty(t, next)
	require.Len(t, page, 2)
	require.Equal(t, "next", page[0].Content)
	require.Equal(t, "orphan", page[1].Content)
}

func TestCreatePostKeepsForeignSlot(t *testing.T) {
	store := inmemoryimpl.NewInMemoryStore()
	l := ledger.New(store)
	_, _, err := l.CreateProfile(ctx, "alice", "alice_h", "Alice")
	require.NoError(t, err)
	_, _, err = l.CreateProfile(ctx, "bob", "bob_h", "Bob")
	require.NoError(t, err)
	bobs, _, err := l.CreatePost(ctx, "bob", "bob's")
	require.NoError(t, err)
	rec, err := store.Read(ctx, bobs.Key)
	require.NoError(t, err)
	require.NoError(t, store.CreateIfAbsent(ctx, ledger.PostKey("alice", 0), rec.Data))

	_, _, err = l.CreatePost(ctx, "alice", "mine")
	require.ErrorIs(t, err, ledger.ErrAlreadyExists)
	p, err := l.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, p.PostCount)
}
