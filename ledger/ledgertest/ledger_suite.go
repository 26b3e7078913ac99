package ledgertest

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"social-ledger/ledger"

	"github.com/stretchr/testify/suite"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// LedgerSuite runs the ledger operations against the store NewStore hands
// out. The store must be empty and is closed after each test.
type LedgerSuite struct {
	suite.Suite

	NewStore func() ledger.Store

	store  ledger.Store
	sink   *RecordingSink
	ledger *ledger.Ledger
}

func (s *LedgerSuite) SetupTest() {
	s.store = s.NewStore()
	s.sink = &RecordingSink{}
	s.ledger = ledger.New(s.store,
		ledger.WithClock(NewStepClock(epoch, time.Second)),
		ledger.WithSink(s.sink),
	)
}

func (s *LedgerSuite) TearDownTest() {
	if s.store != nil {
		s.Require().NoError(s.store.Close())
	}
}

func (s *LedgerSuite) createProfile(owner ledger.Identity) ledger.Profile {
	p, _, err := s.ledger.CreateProfile(ctx, owner, string(owner)+"_h", "Name of "+string(owner))
	s.Require().NoError(err)
	return p
}

func (s *LedgerSuite) profile(owner ledger.Identity) ledger.Profile {
	p, err := s.ledger.GetProfile(ctx, owner)
	s.Require().NoError(err)
	return p
}

func (s *LedgerSuite) TestCreateProfile() {
	p, events, err := s.ledger.CreateProfile(ctx, "alice", "alice_h", "Alice")
	s.Require().NoError(err)
	s.Require().Equal(ledger.Profile{
		Key:    ledger.ProfileKey("alice"),
		Owner:  "alice",
		Handle: "alice_h",
		Name:   "Alice",
	}, p)
	s.Require().Len(events, 1)
	s.Require().Equal(ledger.EventProfileCreated, events[0].Type)

	stored := s.profile("alice")
	s.Require().Equal(p, stored)
}

func (s *LedgerSuite) TestCreateProfileTwice() {
	s.createProfile("alice")

	_, _, err := s.ledger.CreateProfile(ctx, "alice", "other", "Other")
	s.Require().ErrorIs(err, ledger.ErrAlreadyExists)
	var le *ledger.Error
	s.Require().ErrorAs(err, &le)
	s.Require().Equal("owner", le.Field)
	s.Require().Equal(ledger.ProfileKey("alice"), le.Key)

	s.Require().Equal("alice_h", s.profile("alice").Handle)
}

func (s *LedgerSuite) TestCreateProfileLimits() {
	tests := []struct {
		name   string
		owner  ledger.Identity
		handle string
		pname  string
		kind   error
		field  string
	}{
		{"handle at limit", "u1", strings.Repeat("h", 15), "n", nil, ""},
		{"handle too long", "u2", "this_handle_is_way_too_long", "n", ledger.ErrContentTooLong, "handle"},
		{"name at limit", "u3", "h", strings.Repeat("n", 50), nil, ""},
		{"name too long", "u4", "h", strings.Repeat("n", 51), ledger.ErrContentTooLong, "name"},
		{"empty owner", "", "h", "n", ledger.ErrInvalidIdentity, "owner"},
		{"owner too long", ledger.Identity(strings.Repeat("o", 65)), "h", "n", ledger.ErrInvalidIdentity, "owner"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, _, err := s.ledger.CreateProfile(ctx, tt.owner, tt.handle, tt.pname)
			if tt.kind == nil {
				s.Require().NoError(err)
				return
			}
			s.Require().ErrorIs(err, tt.kind)
			var le *ledger.Error
			s.Require().ErrorAs(err, &le)
			s.Require().Equal(tt.field, le.Field)
			_, err = s.store.Read(ctx, ledger.ProfileKey(tt.owner))
			s.Require().ErrorIs(err, ledger.ErrNotFound)
		})
	}
}

func (s *LedgerSuite) TestCreatePost() {
	s.createProfile("alice")

	for i, content := range []string{"", "hello world", strings.Repeat("x", 280)} {
		post, events, err := s.ledger.CreatePost(ctx, "alice", content)
		s.Require().NoError(err)
		s.Require().Equal(ledger.PostKey("alice", uint64(i)), post.Key)
		s.Require().Equal(content, post.Content)
		s.Require().Equal(ledger.Identity("alice"), post.Author)
		s.Require().Zero(post.LikeCount)
		s.Require().Zero(post.CommentCount)
		s.Require().Equal(uint64(i+1), s.profile("alice").PostCount)
		s.Require().Len(events, 1)
		s.Require().Equal(ledger.EventPostCreated, events[0].Type)
		s.Require().Equal(post.Key, events[0].PostKey)

		stored, err := s.ledger.GetPost(ctx, post.Key)
		s.Require().NoError(err)
		s.Require().Equal(post, stored)
	}
}

func (s *LedgerSuite) TestCreatePostTooLong() {
	s.createProfile("alice")

	_, _, err := s.ledger.CreatePost(ctx, "alice", strings.Repeat("x", 281))
	s.Require().ErrorIs(err, ledger.ErrContentTooLong)
	s.Require().Zero(s.profile("alice").PostCount)
	_, err = s.store.Read(ctx, ledger.PostKey("alice", 0))
	s.Require().ErrorIs(err, ledger.ErrNotFound)
}

func (s *LedgerSuite) TestCreatePostWithoutProfile() {
	_, _, err := s.ledger.CreatePost(ctx, "ghost", "boo")
	s.Require().ErrorIs(err, ledger.ErrNotFound)
	_, err = s.store.Read(ctx, ledger.PostKey("ghost", 0))
	s.Require().ErrorIs(err, ledger.ErrNotFound)
}

func (s *LedgerSuite) TestCreatePostSlotTaken() {
	s.createProfile("alice")
	// a post already sitting in the next derived slot must not be overwritten
	s.Require().NoError(s.store.CreateIfAbsent(ctx, ledger.PostKey("alice", 0), []byte("squatter")))

	_, _, err := s.ledger.CreatePost(ctx, "alice", "hello")
	s.Require().ErrorIs(err, ledger.ErrAlreadyExists)
	s.Require().Zero(s.profile("alice").PostCount)
}

func (s *LedgerSuite) TestCreatePostTimestampFromClock() {
	s.createProfile("alice")
	post, _, err := s.ledger.CreatePost(ctx, "alice", "tick")
	s.Require().NoError(err)
	// the profile creation consumed the first tick
	s.Require().Equal(epoch.Add(time.Second), post.CreatedAt)
}

func (s *LedgerSuite) TestConcurrentPostsGetDistinctSlots() {
	s.createProfile("alice")
	const n = 50

	var wg sync.WaitGroup
	keys := make(chan ledger.Key, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			post, _, err := s.ledger.CreatePost(ctx, "alice", fmt.Sprintf("post %d", i))
			if err == nil {
				keys <- post.Key
			}
		}(i)
	}
	wg.Wait()
	close(keys)

	seen := map[ledger.Key]bool{}
	for key := range keys {
		s.Require().False(seen[key], "slot %s handed out twice", key)
		seen[key] = true
	}
	s.Require().Len(seen, n)
	s.Require().Equal(uint64(n), s.profile("alice").PostCount)
}

func (s *LedgerSuite) TestLikePost() {
	s.createProfile("alice")
	post, _, err := s.ledger.CreatePost(ctx, "alice", "hello world")
	s.Require().NoError(err)

	liked, events, err := s.ledger.LikePost(ctx, post.Key, "bob")
	s.Require().NoError(err)
	s.Require().Equal(uint64(1), liked.LikeCount)
	s.Require().Equal(post.Key, liked.Key)
	s.Require().Len(events, 1)
	s.Require().Equal(ledger.EventPostLiked, events[0].Type)
	s.Require().Equal(ledger.Identity("bob"), events[0].Actor)
	s.Require().Equal(ledger.Identity("alice"), events[0].Subject)
	s.Require().Equal(post.Key, events[0].PostKey)
	s.Require().False(events[0].Timestamp.IsZero())

	// no profile is needed to like, and the author may like their own post
	_, _, err = s.ledger.LikePost(ctx, post.Key, "alice")
	s.Require().NoError(err)
	stored, err := s.ledger.GetPost(ctx, post.Key)
	s.Require().NoError(err)
	s.Require().Equal(uint64(2), stored.LikeCount)
}

func (s *LedgerSuite) TestLikeMissingPost() {
	_, _, err := s.ledger.LikePost(ctx, ledger.PostKey("alice", 9), "bob")
	s.Require().ErrorIs(err, ledger.ErrNotFound)

	s.createProfile("alice")
	_, _, err = s.ledger.LikePost(ctx, ledger.ProfileKey("alice"), "bob")
	s.Require().ErrorIs(err, ledger.ErrNotFound)
	s.Require().Empty(s.sink.OfType(ledger.EventPostLiked))
}

func (s *LedgerSuite) TestConcurrentLikes() {
	s.createProfile("alice")
	post, _, err := s.ledger.CreatePost(ctx, "alice", "popular")
	s.Require().NoError(err)

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, _ = s.ledger.LikePost(ctx, post.Key, ledger.Identity(fmt.Sprintf("fan-%d", i)))
		}(i)
	}
	wg.Wait()

	stored, err := s.ledger.GetPost(ctx, post.Key)
	s.Require().NoError(err)
	s.Require().Equal(uint64(n), stored.LikeCount)
	s.Require().Len(s.sink.OfType(ledger.EventPostLiked), n)
}

func (s *LedgerSuite) TestFollowUser() {
	s.createProfile("alice")
	s.createProfile("bob")

	events, err := s.ledger.FollowUser(ctx, "alice", "bob")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Require().Equal(ledger.EventUserFollowed, events[0].Type)
	s.Require().Equal(ledger.Identity("alice"), events[0].Actor)
	s.Require().Equal(ledger.Identity("bob"), events[0].Subject)

	s.Require().Equal(uint64(1), s.profile("alice").FollowingCount)
	s.Require().Zero(s.profile("alice").FollowerCount)
	s.Require().Equal(uint64(1), s.profile("bob").FollowerCount)
	s.Require().Zero(s.profile("bob").FollowingCount)

	// repeated follows are counted again
	_, err = s.ledger.FollowUser(ctx, "alice", "bob")
	s.Require().NoError(err)
	s.Require().Equal(uint64(2), s.profile("alice").FollowingCount)
	s.Require().Equal(uint64(2), s.profile("bob").FollowerCount)
}

func (s *LedgerSuite) TestFollowSelf() {
	s.createProfile("alice")
	_, err := s.ledger.FollowUser(ctx, "alice", "alice")
	s.Require().NoError(err)
	p := s.profile("alice")
	s.Require().Equal(uint64(1), p.FollowingCount)
	s.Require().Equal(uint64(1), p.FollowerCount)
}

func (s *LedgerSuite) TestConcurrentReciprocalFollows() {
	s.createProfile("alice")
	s.createProfile("bob")

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.ledger.FollowUser(ctx, "alice", "bob")
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := s.ledger.FollowUser(ctx, "bob", "alice")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.Require().NoError(err)
	}
	for _, owner := range []ledger.Identity{"alice", "bob"} {
		p := s.profile(owner)
		s.Require().Equal(uint64(n), p.FollowingCount, owner)
		s.Require().Equal(uint64(n), p.FollowerCount, owner)
	}
	s.Require().Len(s.sink.OfType(ledger.EventUserFollowed), 2*n)
}

func (s *LedgerSuite) TestFollowMissingProfileChangesNothing() {
	s.createProfile("alice")

	_, err := s.ledger.FollowUser(ctx, "alice", "ghost")
	s.Require().ErrorIs(err, ledger.ErrNotFound)
	var le *ledger.Error
	s.Require().ErrorAs(err, &le)
	s.Require().Equal("followee", le.Field)
	s.Require().Zero(s.profile("alice").FollowingCount)

	_, err = s.ledger.FollowUser(ctx, "ghost", "alice")
	s.Require().ErrorIs(err, ledger.ErrNotFound)
	s.Require().ErrorAs(err, &le)
	s.Require().Equal("follower", le.Field)
	s.Require().Zero(s.profile("alice").FollowerCount)
	s.Require().Empty(s.sink.OfType(ledger.EventUserFollowed))
}

func (s *LedgerSuite) TestScenario() {
	p, _, err := s.ledger.CreateProfile(ctx, "alice", "alice_h", "Alice")
	s.Require().NoError(err)
	s.Require().Zero(p.PostCount)

	post, _, err := s.ledger.CreatePost(ctx, "alice", "hello world")
	s.Require().NoError(err)
	s.Require().Equal("hello world", post.Content)
	s.Require().Zero(post.LikeCount)
	s.Require().Equal(uint64(1), s.profile("alice").PostCount)

	liked, _, err := s.ledger.LikePost(ctx, post.Key, "bob")
	s.Require().NoError(err)
	s.Require().Equal(uint64(1), liked.LikeCount)

	types := []ledger.EventType{}
	for _, ev := range s.sink.Events() {
		types = append(types, ev.Type)
	}
	s.Require().Equal([]ledger.EventType{
		ledger.EventProfileCreated,
		ledger.EventPostCreated,
		ledger.EventPostLiked,
	}, types)
}

func (s *LedgerSuite) TestSinkFailureDoesNotFailOperation() {
	s.sink.Err = errors.New("sink down")
	_, _, err := s.ledger.CreateProfile(ctx, "alice", "a", "A")
	s.Require().NoError(err)
	s.Require().Len(s.sink.Events(), 1)
}

func (s *LedgerSuite) TestIsReady() {
	s.Require().True(s.ledger.IsReady(ctx))
}
