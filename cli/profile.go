package cli

import (
	"social-ledger/ledger"

	"github.com/spf13/cobra"
)

func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Create and inspect profiles",
	}
	cmd.AddCommand(newProfileCreateCommand(rootOpts))
	cmd.AddCommand(newProfileGetCommand(rootOpts))
	return cmd
}

func newProfileCreateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <owner> <handle> <name>",
		Short: "Create the profile owned by an identity",
		Long: `Create the profile owned by an identity.

The handle is at most 15 bytes and the name at most 50. An identity owns at
most one profile.

Example:
  social-ledger profile create alice alice "Alice Liddell"`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := opts.formatter(cmd)
			profile, events, err := a.ledger.CreateProfile(cmd.Context(), ledger.Identity(args[0]), args[1], args[2])
			if err != nil {
				return out.Fail(err)
			}
			out.VerboseLog("profile key %s", profile.Key)
			return out.Success(result{Profile: &profile, Events: events}, profileText(profile))
		},
	}
}

func newProfileGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <owner>",
		Short:         "Show a profile and its counters",
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
			profile, err := a.ledger.GetProfile(cmd.Context(), ledger.Identity(args[0]))
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(result{Profile: &profile}, profileText(profile))
		},
	}
}
