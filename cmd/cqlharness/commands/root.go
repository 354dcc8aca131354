// Package commands defines the cqlharness CLI commands.
//
// Every command builds a Harness from the environment (see
// cqlharness.LoadConfigFromEnv) or from the file given with --config.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/arloliu/cqlharness"
	"github.com/arloliu/cqlharness/internal/logging"
	"github.com/arloliu/cqlharness/types"
)

// HarnessFactory builds the Harness a command operates on.
type HarnessFactory func(cfg *cqlharness.Config, logger types.Logger) (*cqlharness.Harness, error)

func defaultFactory(cfg *cqlharness.Config, logger types.Logger) (*cqlharness.Harness, error) {
	return cqlharness.New(cfg, cqlharness.WithLogger(logger))
}

type globalFlags struct {
	configPath string
	verbose    bool
}

// Root returns the root command for the cqlharness CLI.
func Root() *cobra.Command {
	return RootWith(defaultFactory)
}

// RootWith returns the root command using factory to build harnesses.
func RootWith(factory HarnessFactory) *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "cqlharness",
		Short:         "Provision and remove Cassandra test clusters",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to a YAML configuration file (default: environment)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")

	build := func(cmd *cobra.Command) (*cqlharness.Harness, error) {
		cfg, err := loadConfig(g.configPath)
		if err != nil {
			return nil, err
		}

		return factory(cfg, newLogger(cmd, g.verbose))
	}

	cmd.AddCommand(Ensure(build))
	cmd.AddCommand(Status(build))
	cmd.AddCommand(Teardown(build))
	cmd.AddCommand(RemoveAll(build))

	return cmd
}

type buildFunc func(cmd *cobra.Command) (*cqlharness.Harness, error)

func loadConfig(path string) (*cqlharness.Config, error) {
	if path != "" {
		return cqlharness.LoadConfigFile(path)
	}

	return cqlharness.LoadConfigFromEnv()
}

func newLogger(cmd *cobra.Command, verbose bool) types.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	out := cmd.ErrOrStderr()
	if out == nil {
		out = os.Stderr
	}

	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
}
