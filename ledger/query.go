package ledger

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
)

const (
	DefaultPageSize = 10
	MaxFeedSize     = 100
)

func (l *Ledger) GetProfile(ctx context.Context, owner Identity) (Profile, error) {
	if err := ValidateIdentity("owner", owner); err != nil {
		return Profile{}, err
	}
	key := ProfileKey(owner)
	p, err := readProfile(ctx, l.store, key)
	if err != nil {
		return Profile{}, fail("owner", key, err)
	}
	return p, nil
}

func (l *Ledger) GetPost(ctx context.Context, key Key) (Post, error) {
	if key.Kind() != KindPost {
		return Post{}, &Error{Kind: ErrNotFound, Field: "post", Key: key}
	}
	p, err := readPost(ctx, l.store, key)
	if err != nil {
		return Post{}, fail("post", key, err)
	}
	return p, nil
}

func encodePageToken(seq uint64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatUint(seq, 10)))
}

func decodePageToken(token string) (uint64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("%w: bad page token", ErrNotFound)
	}
	seq, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad page token", ErrNotFound)
	}
	return seq, nil
}

// ListPosts pages through author's posts newest first. Posts are found by
// walking derived keys down from the author's post count, so no index is kept.
// An empty next token means the last page was returned.
func (l *Ledger) ListPosts(ctx context.Context, author Identity, token string, size uint8) ([]Post, string, error) {
	profile, err := l.GetProfile(ctx, author)
	if err != nil {
		return nil, "", err
	}
	if size == 0 {
		size = DefaultPageSize
	}

	// start is one past the next sequence number to return.
	start := profile.PostCount
	if token != "" {
		seq, err := decodePageToken(token)
		if err != nil {
			return nil, "", &Error{Kind: ErrNotFound, Field: "page", Err: err}
		}
		if seq >= profile.PostCount {
			return nil, "", &Error{Kind: ErrNotFound, Field: "page", Err: fmt.Errorf("page starts past the last post")}
		}
		start = seq + 1
	}

	posts := make([]Post, 0, size)
	seq := start
	for seq > 0 && len(posts) < int(size) {
		seq--
		p, err := readPost(ctx, l.store, PostKey(author, seq))
		if err != nil {
			return nil, "", fail("post", PostKey(author, seq), err)
		}
		posts = append(posts, p)
	}

	var next string
	if seq > 0 {
		next = encodePageToken(seq - 1)
	}
	return posts, next, nil
}
