package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arloliu/cqlharness/fleet"
	"github.com/arloliu/cqlharness/types"
)

// Status returns the status command.
//
// The status command lists the given clusters, or every well-known cluster,
// with their topology and contact points.
func Status(build buildFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status [NAME...]",
		Short: "Show provisioned clusters",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := build(cmd)
			if err != nil {
				return err
			}

			cfg := h.Config()
			out := cmd.OutOrStdout()
			if cfg.External {
				fmt.Fprintf(out, "external %s\n", strings.Join(cfg.ExternalContactPoints, ","))
				return nil
			}

			names := args
			if len(names) == 0 {
				names = types.WellKnownClusterNames()
			}
			for _, name := range names {
				c, err := cfg.Controller.Load(cmd.Context(), name)
				switch {
				case errors.Is(err, types.ErrClusterNotFound):
					fmt.Fprintf(out, "%s absent\n", name)
				case err != nil:
					return fmt.Errorf("load %s: %w", name, err)
				default:
					fmt.Fprintf(out, "%s %s %s\n",
						name, fleet.DatacenterTopology(c.Nodes()), strings.Join(c.ContactPoints(), ","))
				}
			}

			return nil
		},
	}
}
