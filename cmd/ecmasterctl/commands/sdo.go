package commands

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/go-ecat/ecmaster/cmd/ecmasterctl/cmdutil"
)

const defaultAwaitBudget = 2000

var sdoCmd = &cobra.Command{
	Use:   "sdo <read|write> <index> <subindex> [hex-data]",
	Short: "Read or write a parameter object (SDO) by index:subindex",
	Args:  cobra.RangeArgs(3, 4),
	RunE:  runSDO,
}

func init() {
	rootCmd.AddCommand(sdoCmd)
}

func runSDO(cmd *cobra.Command, args []string) error {
	op := args[0]
	index, err := parseU16(args[1])
	if err != nil {
		return fmt.Errorf("ecmasterctl: index: %w", err)
	}
	subindex, err := parseU8(args[2])
	if err != nil {
		return fmt.Errorf("ecmasterctl: subindex: %w", err)
	}

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

	switch op {
	case "read":
		for _, pos := range selected {
			req := sess.Client.IssueParameterRead(pos, index, subindex)
			if err := sess.Client.Await(req, defaultAwaitBudget); err != nil {
				return fmt.Errorf("ecmasterctl: slave %d: %w", pos, err)
			}
			fmt.Printf("slave %d: %04x:%02x = %s\n", pos, index, subindex, hex.EncodeToString(sess.Client.Data(req)))
		}
	case "write":
		if len(args) != 4 {
			return fmt.Errorf("ecmasterctl: write requires hex-data")
		}
		data, err := hex.DecodeString(args[3])
		if err != nil {
			return fmt.Errorf("ecmasterctl: hex-data: %w", err)
		}
		for _, pos := range selected {
			req := sess.Client.IssueParameterWrite(pos, index, subindex, data)
			if err := sess.Client.Await(req, defaultAwaitBudget); err != nil {
				return fmt.Errorf("ecmasterctl: slave %d: %w", pos, err)
			}
			if !cmdutil.Flags.Quiet {
				fmt.Printf("slave %d: %04x:%02x written\n", pos, index, subindex)
			}
		}
	default:
		return fmt.Errorf("ecmasterctl: unknown sdo operation %q (want read or write)", op)
	}
	return nil
}

func parseU16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	return uint16(v), err
}

func parseU8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	return uint8(v), err
}
