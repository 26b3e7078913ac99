package ledger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Ledger applies social operations to a Store.
type Ledger struct {
	store   Store
	clock   Clock
	sink    Sink
	log     *zap.Logger
	authors *keyedMutex[Identity]
}

type Option func(*Ledger)

func WithClock(c Clock) Option { return func(l *Ledger) { l.clock = c } }

func WithSink(s Sink) Option { return func(l *Ledger) { l.sink = s } }

func WithLogger(log *zap.Logger) Option { return func(l *Ledger) { l.log = log } }

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		clock:   SystemClock{},
		sink:    DiscardSink{},
		log:     zap.NewNop(),
		authors: newKeyedMutex[Identity](),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsReady reports whether the backing store answers.
func (l *Ledger) IsReady(ctx context.Context) bool {
	return l.store.Ping(ctx) == nil
}

// atomically runs fn in one transaction when the store supports it. Otherwise
// the writes in fn are applied one by one.
func (l *Ledger) atomically(ctx context.Context, fn func(Store) error) error {
	if tx, ok := l.store.(Transactor); ok {
		return tx.InTx(ctx, fn)
	}
	return fn(l.store)
}

func (l *Ledger) publish(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	if err := l.sink.Publish(ctx, events...); err != nil {
		l.log.Warn("publish events", zap.Int("count", len(events)), zap.Error(err))
	}
}

// CreateProfile registers owner's profile with zeroed counters.
func (l *Ledger) CreateProfile(ctx context.Context, owner Identity, handle, name string) (Profile, []Event, error) {
	if err := ValidateIdentity("owner", owner); err != nil {
		return Profile{}, nil, err
	}
	if err := ValidateLength("handle", handle, MaxHandleLen); err != nil {
		return Profile{}, nil, err
	}
	if err := ValidateLength("name", name, MaxNameLen); err != nil {
		return Profile{}, nil, err
	}

	profile := Profile{Key: ProfileKey(owner), Owner: owner, Handle: handle, Name: name}
	data, err := EncodeProfile(profile)
	if err != nil {
		return Profile{}, nil, err
	}
	if err := l.store.CreateIfAbsent(ctx, profile.Key, data); err != nil {
		return Profile{}, nil, fail("owner", profile.Key, err)
	}

	events := []Event{newEvent(EventProfileCreated, owner, l.clock.Now())}
	l.log.Info("profile created", zap.String("owner", string(owner)), zap.String("key", profile.Key.String()))
	l.publish(ctx, events)
	return profile, events, nil
}

// CreatePost stores content as author's next post and bumps the author's
// post count. The post key is derived from the post count read in the same
// critical section. A post of author's found in that slot was stored by a
// call that failed before counting it; it is counted and the next slot tried.
func (l *Ledger) CreatePost(ctx context.Context, author Identity, content string) (Post, []Event, error) {
	if err := ValidateIdentity("author", author); err != nil {
		return Post{}, nil, err
	}
	if err := ValidateLength("content", content, MaxContentLen); err != nil {
		return Post{}, nil, err
	}

	unlock := l.authors.Lock(author)
	defer unlock()

	now := l.clock.Now()
	profileKey := ProfileKey(author)
	var post Post
	err := l.atomically(ctx, func(s Store) error {
		for repairs := 0; ; repairs++ {
			profile, err := readProfile(ctx, s, profileKey)
			if err != nil {
				return fail("author", profileKey, err)
			}
			if err := Authorize(profile.Owner, author); err != nil {
				return fail("author", profileKey, err)
			}

			seq := profile.PostCount
			post = Post{
				Key:       PostKey(author, seq),
				Author:    author,
				CreatedAt: now.UTC().Truncate(time.Second),
				Content:   content,
			}
			data, err := EncodePost(post)
			if err != nil {
				return err
			}
			err = s.CreateIfAbsent(ctx, post.Key, data)
			if errors.Is(err, ErrAlreadyExists) && repairs < maxSlotRepairs && wroteSlot(ctx, s, post.Key, author) {
				// an earlier CreatePost stored this post but never counted it
				l.log.Warn("counting orphaned post", zap.String("author", string(author)), zap.String("key", post.Key.String()))
				if err := s.Update(ctx, profileKey, coverSlot(seq)); err != nil {
					return fail("author", profileKey, err)
				}
				continue
			}
			if err != nil {
				return fail("post", post.Key, err)
			}
			if err := s.Update(ctx, profileKey, coverSlot(seq)); err != nil {
				return fail("author", profileKey, err)
			}
			return nil
		}
	})
	if err != nil {
		return Post{}, nil, err
	}

	ev := newEvent(EventPostCreated, author, now)
	ev.PostKey = post.Key
	events := []Event{ev}
	l.log.Info("post created", zap.String("author", string(author)), zap.String("key", post.Key.String()))
	l.publish(ctx, events)
	return post, events, nil
}

// LikePost adds one like to the post. Anyone may like any post, including
// their own, any number of times.
func (l *Ledger) LikePost(ctx context.Context, postKey Key, liker Identity) (Post, []Event, error) {
	if err := ValidateIdentity("liker", liker); err != nil {
		return Post{}, nil, err
	}
	if postKey.Kind() != KindPost {
		return Post{}, nil, &Error{Kind: ErrNotFound, Field: "post", Key: postKey}
	}

	var post Post
	err := l.store.Update(ctx, postKey, func(data []byte) ([]byte, error) {
		p, err := DecodePost(data)
		if err != nil {
			return nil, err
		}
		if p.LikeCount, err = increment(p.LikeCount); err != nil {
			return nil, err
		}
		post = p
		return EncodePost(p)
	})
	if err != nil {
		return Post{}, nil, fail("post", postKey, err)
	}
	post.Key = postKey

	ev := newEvent(EventPostLiked, liker, l.clock.Now())
	ev.Subject = post.Author
	ev.PostKey = postKey
	events := []Event{ev}
	l.log.Debug("post liked", zap.String("liker", string(liker)), zap.String("key", postKey.String()))
	l.publish(ctx, events)
	return post, events, nil
}

// FollowUser records follower following followee. Repeated follows count
// again and following oneself is allowed.
func (l *Ledger) FollowUser(ctx context.Context, follower, followee Identity) ([]Event, error) {
	if err := ValidateIdentity("follower", follower); err != nil {
		return nil, err
	}
	if err := ValidateIdentity("followee", followee); err != nil {
		return nil, err
	}

	followerKey, followeeKey := ProfileKey(follower), ProfileKey(followee)
	bumps := []struct {
		field string
		key   Key
		fn    Mutator
	}{
		{"follower", followerKey, bumpProfile(func(p *Profile) *uint64 { return &p.FollowingCount })},
		{"followee", followeeKey, bumpProfile(func(p *Profile) *uint64 { return &p.FollowerCount })},
	}
	// Rows are locked in key order so that A->B and B->A cannot deadlock.
	if bumps[1].key < bumps[0].key {
		bumps[0], bumps[1] = bumps[1], bumps[0]
	}
	err := l.atomically(ctx, func(s Store) error {
		if _, err := s.Read(ctx, followerKey); err != nil {
			return fail("follower", followerKey, err)
		}
		if _, err := s.Read(ctx, followeeKey); err != nil {
			return fail("followee", followeeKey, err)
		}
		for _, b := range bumps {
			if err := s.Update(ctx, b.key, b.fn); err != nil {
				return fail(b.field, b.key, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := newEvent(EventUserFollowed, follower, l.clock.Now())
	ev.Subject = followee
	events := []Event{ev}
	l.log.Debug("user followed", zap.String("follower", string(follower)), zap.String("followee", string(followee)))
	l.publish(ctx, events)
	return events, nil
}

func bumpProfile(counter func(*Profile) *uint64) Mutator {
	return func(data []byte) ([]byte, error) {
		p, err := DecodeProfile(data)
		if err != nil {
			return nil, err
		}
		c := counter(&p)
		if *c, err = increment(*c); err != nil {
			return nil, err
		}
		return EncodeProfile(p)
	}
}

// maxSlotRepairs bounds how many orphaned posts one CreatePost will count.
const maxSlotRepairs = 16

// coverSlot raises PostCount to include slot seq. Applying it twice is the
// same as applying it once.
func coverSlot(seq uint64) Mutator {
	return func(data []byte) ([]byte, error) {
		p, err := DecodeProfile(data)
		if err != nil {
			return nil, err
		}
		next, err := increment(seq)
		if err != nil {
			return nil, err
		}
		if p.PostCount < next {
			p.PostCount = next
		}
		return EncodeProfile(p)
	}
}

// wroteSlot reports whether key already holds a post by author.
func wroteSlot(ctx context.Context, s Store, key Key, author Identity) bool {
	p, err := readPost(ctx, s, key)
	return err == nil && p.Author == author
}

func readProfile(ctx context.Context, s Store, key Key) (Profile, error) {
	rec, err := s.Read(ctx, key)
	if err != nil {
		return Profile{}, err
	}
	return DecodeProfile(rec.Data)
}

func readPost(ctx context.Context, s Store, key Key) (Post, error) {
	rec, err := s.Read(ctx, key)
	if err != nil {
		return Post{}, err
	}
	p, err := DecodePost(rec.Data)
	if err != nil {
		return Post{}, err
	}
	p.Key = key
	return p, nil
}

// IsNotFound is shorthand for errors.Is(err, ErrNotFound).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
