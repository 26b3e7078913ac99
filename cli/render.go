package cli

import (
	"fmt"
	"strings"
	"time"

	"social-ledger/ledger"
)

// result is the JSON payload of the record commands. Only the parts a
// command produced are set.
type result struct {
	Profile  *ledger.Profile `json:"profile,omitempty"`
	Post     *ledger.Post    `json:"post,omitempty"`
	Posts    []ledger.Post   `json:"posts,omitempty"`
	NextPage string          `json:"nextPage,omitempty"`
	Events   []ledger.Event  `json:"events,omitempty"`
}

func profileText(p ledger.Profile) string {
	return fmt.Sprintf("%s (@%s) %s\n  key:       %s\n  posts:     %d\n  followers: %d\n  following: %d",
		p.Owner, p.Handle, p.Name, p.Key, p.PostCount, p.FollowerCount, p.FollowingCount)
}

func postText(p ledger.Post) string {
	return fmt.Sprintf("%s\n  %s at %s\n  %s\n  likes: %d  comments: %d",
		p.Key, p.Author, p.CreatedAt.Format(time.RFC3339), p.Content, p.LikeCount, p.CommentCount)
}

func postsText(posts []ledger.Post, nextPage string) string {
	if len(posts) == 0 {
		return "No posts"
	}
	parts := make([]string, 0, len(posts)+1)
	for _, p := range posts {
		parts = append(parts, postText(p))
	}
	if nextPage != "" {
		parts = append(parts, "next page: "+nextPage)
	}
	return strings.Join(parts, "\n")
}
