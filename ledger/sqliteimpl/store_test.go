package sqliteimpl

import (
	"context"
	"path/filepath"
	"testing"

	"social-ledger/ledger"
	"social-ledger/ledger/ledgertest"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestSQLiteStore(t *testing.T) {
	suite.Run(t, &ledgertest.StoreSuite{
		NewStore: func() ledger.Store {
			s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
			require.NoError(t, err)
			return s
		},
	})
}

func TestSQLiteLedger(t *testing.T) {
	suite.Run(t, &ledgertest.LedgerSuite{
		NewStore: func() ledger.Store {
			s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
			require.NoError(t, err)
			return s
		},
	})
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateIfAbsent(ctx, ledger.ProfileKey("alice"), []byte("x")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	rec, err := s.Read(ctx, ledger.ProfileKey("alice"))
	require.NoError(t, err)
	require.Equal(t, []byte("x"), rec.Data)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	require.Equal(t, currentSchemaVersion, version)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", mode)
}

func TestKindColumn(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer s.Close()

	key := ledger.PostKey("alice", 0)
	require.NoError(t, s.CreateIfAbsent(context.Background(), key, []byte("x")))
	var kind string
	require.NoError(t, s.db.QueryRow("SELECT kind FROM records WHERE key = ?", string(key)).Scan(&kind))
	require.Equal(t, "post", kind)
}
