package ledgertest

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"social-ledger/ledger"

	"github.com/stretchr/testify/suite"
)

var ctx = context.Background()

// StoreSuite checks the ledger.Store contract. Backend packages embed it and
// set NewStore to hand out an empty store per test.
type StoreSuite struct {
	suite.Suite

	NewStore func() ledger.Store
	// Concurrency is the number of goroutines racing on one key.
	Concurrency int

	store ledger.Store
}

func (s *StoreSuite) SetupTest() {
	s.store = s.NewStore()
}

func (s *StoreSuite) TearDownTest() {
	if s.store != nil {
		s.Require().NoError(s.store.Close())
	}
}

func counterBytes(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func addOne(data []byte) ([]byte, error) {
	return counterBytes(binary.BigEndian.Uint64(data) + 1), nil
}

func (s *StoreSuite) TestCreateThenRead() {
	key := ledger.ProfileKey("suite-create")
	s.Require().NoError(s.store.CreateIfAbsent(ctx, key, []byte("payload")))

	rec, err := s.store.Read(ctx, key)
	s.Require().NoError(err)
	s.Require().Equal(key, rec.Key)
	s.Require().Equal(uint64(1), rec.Version)
	s.Require().Equal([]byte("payload"), rec.Data)
}

func (s *StoreSuite) TestCreateTwiceKeepsFirst() {
	key := ledger.ProfileKey("suite-dup")
	s.Require().NoError(s.store.CreateIfAbsent(ctx, key, []byte("first")))

	err := s.store.CreateIfAbsent(ctx, key, []byte("second"))
	s.Require().ErrorIs(err, ledger.ErrAlreadyExists)

	rec, err := s.store.Read(ctx, key)
	s.Require().NoError(err)
	s.Require().Equal([]byte("first"), rec.Data)
}

func (s *StoreSuite) TestReadMissing() {
	_, err := s.store.Read(ctx, ledger.ProfileKey("suite-nobody"))
	s.Require().ErrorIs(err, ledger.ErrNotFound)
}

func (s *StoreSuite) TestUpdateMissing() {
	called := false
	err := s.store.Update(ctx, ledger.ProfileKey("suite-nobody"), func(data []byte) ([]byte, error) {
		called = true
		return data, nil
	})
	s.Require().ErrorIs(err, ledger.ErrNotFound)
	s.Require().False(called)
}

func (s *StoreSuite) TestUpdateBumpsVersion() {
	key := ledger.PostKey("suite-update", 0)
	s.Require().NoError(s.store.CreateIfAbsent(ctx, key, counterBytes(41)))
	s.Require().NoError(s.store.Update(ctx, key, addOne))

	rec, err := s.store.Read(ctx, key)
	s.Require().NoError(err)
	s.Require().Equal(uint64(2), rec.Version)
	s.Require().Equal(uint64(42), binary.BigEndian.Uint64(rec.Data))
}

func (s *StoreSuite) TestUpdateErrorWritesNothing() {
	key := ledger.PostKey("suite-update-fail", 0)
	s.Require().NoError(s.store.CreateIfAbsent(ctx, key, counterBytes(7)))

	boom := errors.New("boom")
	err := s.store.Update(ctx, key, func([]byte) ([]byte, error) { return nil, boom })
	s.Require().ErrorIs(err, boom)

	rec, err := s.store.Read(ctx, key)
	s.Require().NoError(err)
	s.Require().Equal(uint64(1), rec.Version)
	s.Require().Equal(uint64(7), binary.BigEndian.Uint64(rec.Data))
}

func (s *StoreSuite) TestReadReturnsCopy() {
	key := ledger.ProfileKey("suite-copy")
	s.Require().NoError(s.store.CreateIfAbsent(ctx, key, []byte("abc")))

	rec, err := s.store.Read(ctx, key)
	s.Require().NoError(err)
	rec.Data[0] = 'z'

	rec, err = s.store.Read(ctx, key)
	s.Require().NoError(err)
	s.Require().Equal([]byte("abc"), rec.Data)
}

func (s *StoreSuite) TestConcurrentUpdatesLoseNothing() {
	n := s.Concurrency
	if n == 0 {
		n = 20
	}
	key := ledger.PostKey("suite-race", 0)
	s.Require().NoError(s.store.CreateIfAbsent(ctx, key, counterBytes(0)))

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.store.Update(ctx, key, addOne)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	rec, err := s.store.Read(ctx, key)
	s.Require().NoError(err)
	s.Require().Equal(uint64(n), binary.BigEndian.Uint64(rec.Data))
	s.Require().Equal(uint64(n+1), rec.Version)
}

func (s *StoreSuite) TestTransactionCommits() {
	txr, ok := s.store.(ledger.Transactor)
	if !ok {
		s.T().Skip("store has no transactions")
	}
	a, b := ledger.ProfileKey("suite-tx-a"), ledger.PostKey("suite-tx-a", 0)
	s.Require().NoError(s.store.CreateIfAbsent(ctx, a, counterBytes(0)))

	err := txr.InTx(ctx, func(tx ledger.Store) error {
		if err := tx.CreateIfAbsent(ctx, b, []byte("post")); err != nil {
			return err
		}
		// reads inside the transaction see its own writes
		if _, err := tx.Read(ctx, b); err != nil {
			return err
		}
		return tx.Update(ctx, a, addOne)
	})
	s.Require().NoError(err)

	rec, err := s.store.Read(ctx, a)
	s.Require().NoError(err)
	s.Require().Equal(uint64(1), binary.BigEndian.Uint64(rec.Data))
	_, err = s.store.Read(ctx, b)
	s.Require().NoError(err)
}

func (s *StoreSuite) TestTransactionRollsBack() {
	txr, ok := s.store.(ledger.Transactor)
	if !ok {
		s.T().Skip("store has no transactions")
	}
	a, b := ledger.ProfileKey("suite-tx-b"), ledger.PostKey("suite-tx-b", 0)
	s.Require().NoError(s.store.CreateIfAbsent(ctx, a, counterBytes(0)))

	boom := errors.New("boom")
	err := txr.InTx(ctx, func(tx ledger.Store) error {
		if err := tx.Update(ctx, a, addOne); err != nil {
			return err
		}
		if err := tx.CreateIfAbsent(ctx, b, []byte("post")); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	rec, err := s.store.Read(ctx, a)
	s.Require().NoError(err)
	s.Require().Equal(uint64(0), binary.BigEndian.Uint64(rec.Data))
	s.Require().Equal(uint64(1), rec.Version)
	_, err = s.store.Read(ctx, b)
	s.Require().ErrorIs(err, ledger.ErrNotFound)
}

func (s *StoreSuite) TestPing() {
	s.Require().NoError(s.store.Ping(ctx))
}
