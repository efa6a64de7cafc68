// Package commands implements ecmasterctl's subcommand tree: list/ls/slaves,
// state, sdo, domains, file, and start, each connecting to one master instance through
// hostapi (spec.md §6). Grounded on dfsctl/commands' root-command shape
// (package-level rootCmd, PersistentPreRun flag sync, Execute wrapper).
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ecat/ecmaster/cmd/ecmasterctl/cmdutil"
)

var rootCmd = &cobra.Command{
	Use:   "ecmasterctl",
	Short: "Inspect and control a fieldbus master instance",
	Long: `ecmasterctl talks to a master instance's host interface: listing the
ring's slaves, inspecting or requesting lifecycle states, issuing
parameter-object (SDO) reads and writes, and reporting domain working-counter
status.

This build has no persistent kernel module for the tool to attach to, so
each invocation opens its own short-lived session against the configured
link, lets the ring settle for a few ticks, runs the requested command, and
tears the session down.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		m, err := cmd.Flags().GetInt("master")
		if err != nil {
			return err
		}
		s, err := cmd.Flags().GetString("slave")
		if err != nil {
			return err
		}
		q, err := cmd.Flags().GetBool("quiet")
		if err != nil {
			return err
		}
		v, err := cmd.Flags().GetBool("verbose")
		if err != nil {
			return err
		}
		d, err := cmd.Flags().GetInt("debug")
		if err != nil {
			return err
		}
		cfgPath, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}

		cmdutil.Flags.MasterIndex = m
		cmdutil.Flags.Slave = s
		cmdutil.Flags.Quiet = q
		cmdutil.Flags.Verbose = v
		cmdutil.Flags.DebugLevel = d
		cmdutil.Flags.ConfigPath = cfgPath
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().IntP("master", "m", 0, "master instance index")
	rootCmd.PersistentFlags().StringP("slave", "s", "all", "slave selector (ring position, or \"all\")")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().IntP("debug", "d", 0, "master debug level (0-3)")
	rootCmd.PersistentFlags().String("config", "", "configuration file path")
}

// Execute runs the root command, returning any error for main to report
// and turn into the spec.md §6 exit code (0 success, 1 usage/runtime error).
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd exposes the root command for testing.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// selectedRingPositions parses the -s/--slave selector against the slaves
// hostapi enumerates, returning every ring position when the selector is
// "all" or empty.
func selectedRingPositions(all []int) ([]int, error) {
	sel := cmdutil.Flags.Slave
	if sel == "" || sel == "all" {
		return all, nil
	}
	var pos int
	if _, err := fmt.Sscanf(sel, "%d", &pos); err != nil {
		return nil, fmt.Errorf("ecmasterctl: invalid slave selector %q", sel)
	}
	for _, p := range all {
		if p == pos {
			return []int{pos}, nil
		}
	}
	return nil, fmt.Errorf("ecmasterctl: no slave at ring position %d", pos)
}
