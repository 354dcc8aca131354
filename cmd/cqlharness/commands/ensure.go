package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arloliu/cqlharness"
	"github.com/arloliu/cqlharness/reconcile"
)

// Ensure returns the ensure command.
//
// The ensure command makes the named cluster exist with exactly the given
// topology and, unless --no-start is set, running with its keyspaces
// bootstrapped.
func Ensure(build buildFunc) *cobra.Command {
	var (
		topology string
		noStart  bool
		ipFormat string
	)

	cmd := &cobra.Command{
		Use:   "ensure [NAME]",
		Short: "Create or reuse a cluster with the given topology",
		Long: `Ensure makes NAME the current cluster with exactly the given topology.

An existing cluster with the same name and topology is reused. A cluster
with the same name but a different topology is removed and recreated.
NAME defaults to test_cluster.

Example:
  cqlharness ensure --topology 3
  cqlharness ensure multidc_test_cluster --topology 2,2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topo, err := ParseTopology(topology)
			if err != nil {
				return err
			}
			name := cqlharness.SingleDCClusterName
			if len(args) == 1 {
				name = args[0]
			}

			h, err := build(cmd)
			if err != nil {
				return err
			}

			var opts []reconcile.EnsureOption
			if noStart {
				opts = append(opts, reconcile.WithoutStart())
			}
			if ipFormat != "" {
				opts = append(opts, reconcile.WithIPFormat(ipFormat))
			}

			handle, err := h.UseCluster(cmd.Context(), name, topo, opts...)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s %s\n",
				handle.Name(), handle.Topology(), handle.State(), strings.Join(handle.ContactPoints(), ","))

			return nil
		},
	}

	cmd.Flags().StringVarP(&topology, "topology", "t", "3", "Comma-separated node count per datacenter")
	cmd.Flags().BoolVar(&noStart, "no-start", false, "Create the cluster without starting it")
	cmd.Flags().StringVar(&ipFormat, "ip-format", "", `Node address format, e.g. "::%d" for IPv6`)

	return cmd
}

// ParseTopology parses "3" or "2,2" into a topology.
func ParseTopology(s string) (cqlharness.Topology, error) {
	parts := strings.Split(s, ",")
	topo := make(cqlharness.Topology, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid topology %q: %w", s, err)
		}
		topo = append(topo, n)
	}
	if err := topo.Validate(); err != nil {
		return nil, fmt.Errorf("invalid topology %q: %w", s, err)
	}

	return topo, nil
}
