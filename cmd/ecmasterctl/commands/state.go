package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ecat/ecmaster/cmd/ecmasterctl/cmdutil"
	"github.com/go-ecat/ecmaster/slave"
)

var stateTarget string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show or request a slave's lifecycle state",
	Long: `With no flags, prints the current and target lifecycle state of the
slaves selected by -s. With --to, retargets their lifecycle FSM toward the
named state (one of init, preop, safeop, op).`,
	RunE: runState,
}

func init() {
	stateCmd.Flags().StringVar(&stateTarget, "to", "", "retarget the selected slaves toward this lifecycle state")
	rootCmd.AddCommand(stateCmd)
}

func runState(cmd *cobra.Command, args []string) error {
	sess, err := cmdutil.Connect()
	if err != nil {
		return err
	}
	defer sess.Close()

	all := sess.Client.Slaves()
	ringPositions := make([]int, len(all))
	for i, s := range all {
		ringPositions[i] = s.RingPosition
	}
	selected, err := selectedRingPositions(ringPositions)
	if err != nil {
		return err
	}

	if stateTarget != "" {
		target, err := parseTargetState(stateTarget)
		if err != nil {
			return err
		}
		for _, pos := range selected {
			if err := sess.Client.RequestState(pos, target); err != nil {
				return err
			}
			if !cmdutil.Flags.Quiet {
				fmt.Printf("slave %d: requested %s\n", pos, target)
			}
		}
		return nil
	}

	for _, pos := range selected {
		current, target, ok := sess.Client.State(pos)
		if !ok {
			return fmt.Errorf("ecmasterctl: no slave at ring position %d", pos)
		}
		fmt.Printf("slave %d: current=%s target=%s\n", pos, current, target)
	}
	return nil
}

func parseTargetState(name string) (slave.State, error) {
	switch name {
	case "init":
		return slave.StateInit, nil
	case "preop":
		return slave.StatePreOp, nil
	case "safeop":
		return slave.StateSafeOp, nil
	case "op":
		return slave.StateOp, nil
	default:
		return 0, fmt.Errorf("ecmasterctl: unknown target state %q (want init, preop, safeop, or op)", name)
	}
}
