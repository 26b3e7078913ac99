package inmemoryimpl

import (
	"testing"

	"social-ledger/ledger"
	"social-ledger/ledger/ledgertest"

	"github.com/stretchr/testify/suite"
)

func TestInMemoryStore(t *testing.T) {
	suite.Run(t, &ledgertest.StoreSuite{
		NewStore:    func() ledger.Store { return NewInMemoryStore() },
		Concurrency: 100,
	})
}
