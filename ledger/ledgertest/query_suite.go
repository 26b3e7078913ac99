package ledgertest

import (
	"fmt"

	"social-ledger/ledger"
)

func (s *LedgerSuite) post(author ledger.Identity, content string) ledger.Post {
	p, _, err := s.ledger.CreatePost(ctx, author, content)
	s.Require().NoError(err)
	return p
}

func contents(posts []ledger.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Content)
	}
	return out
}

func (s *LedgerSuite) TestGetProfileMissing() {
	_, err := s.ledger.GetProfile(ctx, "nobody")
	s.Require().ErrorIs(err, ledger.ErrNotFound)

	_, err = s.ledger.GetProfile(ctx, "")
	s.Require().ErrorIs(err, ledger.ErrInvalidIdentity)
}

func (s *LedgerSuite) TestGetPost() {
	s.createProfile("alice")
	created := s.post("alice", "hello")

	got, err := s.ledger.GetPost(ctx, created.Key)
	s.Require().NoError(err)
	s.Require().Equal(created, got)

	_, err = s.ledger.GetPost(ctx, ledger.PostKey("alice", 1))
	s.Require().ErrorIs(err, ledger.ErrNotFound)

	// a profile key never names a post
	_, err = s.ledger.GetPost(ctx, ledger.ProfileKey("alice"))
	s.Require().ErrorIs(err, ledger.ErrNotFound)
}

func (s *LedgerSuite) TestListPosts() {
	s.createProfile("alice")
	for i := 0; i < 5; i++ {
		s.post("alice", fmt.Sprintf("post %d", i))
	}

	page, next, err := s.ledger.ListPosts(ctx, "alice", "", 2)
	s.Require().NoError(err)
	s.Require().Equal([]string{"post 4", "post 3"}, contents(page))
	s.Require().NotEmpty(next)

	page, next, err = s.ledger.ListPosts(ctx, "alice", next, 2)
	s.Require().NoError(err)
	s.Require().Equal([]string{"post 2", "post 1"}, contents(page))

	page, next, err = s.ledger.ListPosts(ctx, "alice", next, 2)
	s.Require().NoError(err)
	s.Require().Equal([]string{"post 0"}, contents(page))
	s.Require().Empty(next)
}

func (s *LedgerSuite) TestListPostsDefaults() {
	s.createProfile("alice")
	for i := 0; i < ledger.DefaultPageSize+2; i++ {
		s.post("alice", fmt.Sprintf("post %d", i))
	}

	page, next, err := s.ledger.ListPosts(ctx, "alice", "", 0)
	s.Require().NoError(err)
	s.Require().Len(page, ledger.DefaultPageSize)
	s.Require().NotEmpty(next)
}

func (s *LedgerSuite) TestListPostsEmptyAndBadToken() {
	s.createProfile("alice")

	page, next, err := s.ledger.ListPosts(ctx, "alice", "", 3)
	s.Require().NoError(err)
	s.Require().Empty(page)
	s.Require().Empty(next)

	_, _, err = s.ledger.ListPosts(ctx, "alice", "!!", 3)
	s.Require().ErrorIs(err, ledger.ErrNotFound)

	_, _, err = s.ledger.ListPosts(ctx, "nobody", "", 3)
	s.Require().ErrorIs(err, ledger.ErrNotFound)
}

func (s *LedgerSuite) TestFeedMergesNewestFirst() {
	s.createProfile("alice")
	s.createProfile("bob")
	s.post("alice", "a0")
	s.post("bob", "b0")
	s.post("alice", "a1")
	s.post("bob", "b1")

	feed, err := s.ledger.Feed(ctx, []ledger.Identity{"alice", "bob", "alice", "nobody"}, 10)
	s.Require().NoError(err)
	s.Require().Equal([]string{"b1", "a1", "b0", "a0"}, contents(feed))

	feed, err = s.ledger.Feed(ctx, []ledger.Identity{"alice", "bob"}, 3)
	s.Require().NoError(err)
	s.Require().Equal([]string{"b1", "a1", "b0"}, contents(feed))
}

func (s *LedgerSuite) TestFeedWithoutPosts() {
	s.createProfile("alice")

	feed, err := s.ledger.Feed(ctx, []ledger.Identity{"alice", "nobody"}, 5)
	s.Require().NoError(err)
	s.Require().Empty(feed)
}
