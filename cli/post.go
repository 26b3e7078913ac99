package cli

import (
	"social-ledger/ledger"

	"github.com/spf13/cobra"
)

func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Create, inspect and list posts",
	}
	cmd.AddCommand(newPostCreateCommand(rootOpts))
	cmd.AddCommand(newPostGetCommand(rootOpts))
	cmd.AddCommand(newPostListCommand(rootOpts))
	return cmd
}

func newPostCreateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <author> <content>",
		Short: "Publish a post of at most 280 bytes",
		Long: `Publish a post of at most 280 bytes.

The author must own a profile. The post is stored under a key derived from
the author and the author's post count.

Example:
  social-ledger post create alice "hello"`,
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
			post, events, err := a.ledger.CreatePost(cmd.Context(), ledger.Identity(args[0]), args[1])
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(result{Post: &post, Events: events}, postText(post))
		},
	}
}

func newPostGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <post-key>",
		Short:         "Show a post",
		Args:          cobra.ExactArgs(1),
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
			post, err := a.ledger.GetPost(cmd.Context(), key)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(result{Post: &post}, postText(post))
		},
	}
}

// PostListOptions holds flags for the post list command.
type PostListOptions struct {
	*RootOptions
	Page string
	Size uint8
}

func newPostListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PostListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <author>",
		Short: "List an author's posts, newest first",
		Long: `List an author's posts, newest first.

Pass the printed next page token back with --page to continue.

Example:
  social-ledger post list alice --size 5`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := opts.formatter(cmd)
			posts, next, err := a.ledger.ListPosts(cmd.Context(), ledger.Identity(args[0]), opts.Page, opts.Size)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(result{Posts: posts, NextPage: next}, postsText(posts, next))
		},
	}

	cmd.Flags().StringVar(&opts.Page, "page", "", "page token from a previous listing")
	cmd.Flags().Uint8Var(&opts.Size, "size", ledger.DefaultPageSize, "posts per page")

	return cmd
}
