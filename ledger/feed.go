package ledger

import (
	"container/heap"
	"context"
)

// timeline is the unread tail of one author's posts.
type timeline struct {
	author Identity
	head   Post
	next   uint64 // number of posts below head still unread
}

// timelineHeap orders timelines by their head post, newest first. Ties break on
// key so the merge is deterministic.
type timelineHeap []*timeline

func (h timelineHeap) Len() int { return len(h) }

func (h timelineHeap) Less(i, j int) bool {
	a, b := h[i].head, h[j].head
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Key < b.Key
}

func (h timelineHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timelineHeap) Push(x any) { *h = append(*h, x.(*timeline)) }

func (h *timelineHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// Feed merges the timelines of authors into the newest limit posts. Authors
// without a profile are skipped; duplicates are read once.
func (l *Ledger) Feed(ctx context.Context, authors []Identity, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxFeedSize {
		limit = MaxFeedSize
	}

	h := &timelineHeap{}
	seen := make(map[Identity]bool, len(authors))
	for _, author := range authors {
		if seen[author] {
			continue
		}
		seen[author] = true
		profile, err := l.GetProfile(ctx, author)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if profile.PostCount == 0 {
			continue
		}
		t := &timeline{author: author, next: profile.PostCount - 1}
		if t.head, err = l.GetPost(ctx, PostKey(author, t.next)); err != nil {
			return nil, err
		}
		heap.Push(h, t)
	}

	var posts []Post
	for h.Len() > 0 && len(posts) < limit {
		t := heap.Pop(h).(*timeline)
		posts = append(posts, t.head)
		if t.next == 0 {
			continue
		}
		t.next--
		var err error
		if t.head, err = l.GetPost(ctx, PostKey(t.author, t.next)); err != nil {
			return nil, err
		}
		heap.Push(h, t)
	}
	return posts, nil
}
