package commands

import (
	"github.com/spf13/cobra"
)

// Teardown returns the teardown command, which removes the named clusters.
func Teardown(build buildFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "teardown NAME...",
		Short: "Remove the named clusters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := build(cmd)
			if err != nil {
				return err
			}

			return h.Reconciler().RemoveAll(cmd.Context(), args...)
		},
	}
}

// RemoveAll returns the remove-all command.
//
// The remove-all command removes every well-known cluster, tolerating
// clusters that do not exist. Use it after an interrupted test run.
func RemoveAll(build buildFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-all",
		Short: "Remove every well-known cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := build(cmd)
			if err != nil {
				return err
			}

			return h.TeardownPackage(cmd.Context())
		},
	}
}
