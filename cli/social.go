package cli

import (
	"fmt"

	"social-ledger/ledger"

	"github.com/spf13/cobra"
)

func NewLikeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "like <post-key> <liker>",
		Short: "Like a post",
		Long: `Like a post. Every call counts, including repeated likes by the same
identity.

Example:
  social-ledger like post:3f... bob`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := opts.formatter(cmd)
			key, err := ledger.ParseKey(args[0])
			if err != nil {
				return out.Fail(err)
			}
			post, events, err := a.ledger.LikePost(cmd.Context(), key, ledger.Identity(args[1]))
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(result{Post: &post, Events: events}, postText(post))
		},
	}
}

func NewFollowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "follow <follower> <followee>",
		Short: "Record that one identity follows another",
		Long: `Record that one identity follows another. Both must own a profile.
Following twice counts twice.

Example:
  social-ledger follow bob alice`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := opts.formatter(cmd)
			follower, followee := ledger.Identity(args[0]), ledger.Identity(args[1])
			events, err := a.ledger.FollowUser(cmd.Context(), follower, followee)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(result{Events: events}, fmt.Sprintf("%s now follows %s", follower, followee))
		},
	}
}

// FeedOptions holds flags for the feed command.
type FeedOptions struct {
	*RootOptions
	Limit int
}

func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "feed <author>...",
		Short: "Merge the newest posts of several authors",
		Long: `Merge the newest posts of several authors into one timeline.

Example:
  social-ledger feed alice bob --limit 20`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			authors := make([]ledger.Identity, 0, len(args))
			for _, arg := range args {
				authors = append(authors, ledger.Identity(arg))
			}
			out := opts.formatter(cmd)
			posts, err := a.ledger.Feed(cmd.Context(), authors, opts.Limit)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(result{Posts: posts}, postsText(posts, ""))
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, fmt.Sprintf("maximum posts, at most %d", ledger.MaxFeedSize))

	return cmd
}
