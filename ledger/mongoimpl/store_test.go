package mongoimpl

import (
	"context"
	"os"
	"testing"

	"social-ledger/ledger"
	"social-ledger/ledger/ledgertest"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
)

var ctx = context.Background()

func TestStore(t *testing.T) {
	addr := os.Getenv("MONGO_URL")
	if addr == "" {
		t.Skip("MONGO_URL not set")
	}
	suite.Run(t, &StoreSuite{mongoAddr: addr, mongodbName: "social_ledger_test"})
}

// StoreSuite runs the shared store contract plus mongo-specific checks
// against a live server.
type StoreSuite struct {
	ledgertest.StoreSuite

	mongoAddr   string
	mongodbName string
}

func (s *StoreSuite) SetupSuite() {
	s.NewStore = func() ledger.Store {
		store, err := NewMongoStore(ctx, s.mongoAddr, s.mongodbName)
		s.Require().NoError(err)
		_, err = store.records.DeleteMany(ctx, bson.M{})
		s.Require().NoError(err)
		return store
	}
}

func (s *StoreSuite) TestDocumentShape() {
	store, err := NewMongoStore(ctx, s.mongoAddr, s.mongodbName)
	s.Require().NoError(err)
	defer store.Close()

	key := ledger.PostKey("alice", 0)
	s.Require().NoError(store.CreateIfAbsent(ctx, key, []byte("x")))

	var doc bson.M
	s.Require().NoError(store.records.FindOne(ctx, bson.M{"_id": string(key)}).Decode(&doc))
	s.Require().Equal("post", doc["kind"])
	s.Require().EqualValues(1, doc["version"])
}
