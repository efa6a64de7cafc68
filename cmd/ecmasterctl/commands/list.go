package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ecat/ecmaster/cmd/ecmasterctl/cmdutil"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "slaves"},
	Short:   "Enumerate ring slaves with state and identity",
	RunE:    runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
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
	wanted := map[int]bool{}
	for _, p := range selected {
		wanted[p] = true
	}

	if !cmdutil.Flags.Quiet {
		fmt.Printf("%-6s %-8s %-10s %-10s %-10s %-10s\n", "POS", "STATION", "VENDOR", "PRODUCT", "STATE", "TARGET")
	}
	for _, s := range all {
		if !wanted[s.RingPosition] {
			continue
		}
		fmt.Printf("%-6d 0x%-6x 0x%-8x 0x%-8x %-10s %-10s\n",
			s.RingPosition, s.StationAddr, s.VendorID, s.ProductCode, s.CurrentState, s.TargetState)
	}
	return nil
}
