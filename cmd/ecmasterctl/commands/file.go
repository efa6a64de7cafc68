package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/go-ecat/ecmaster/cmd/ecmasterctl/cmdutil"
)

// fileAwaitBudget is larger than defaultAwaitBudget since a file transfer
// moves fileChunkSize bytes per mailbox step rather than resolving in one.
const fileAwaitBudget = 20000

var fileCmd = &cobra.Command{
	Use:   "file read <remote-name> <length> <local-path> | file write <remote-name> <local-path>",
	Short: "Read or write a slave file (FoE) to/from a local path",
	Args:  cobra.RangeArgs(3, 4),
	RunE:  runFile,
}

func init() {
	rootCmd.AddCommand(fileCmd)
}

func runFile(cmd *cobra.Command, args []string) error {
	op := args[0]

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
	if len(selected) != 1 {
		return fmt.Errorf("ecmasterctl: file requires exactly one target slave, select one with -s")
	}
	pos := selected[0]

	switch op {
	case "read":
		if len(args) != 4 {
			return fmt.Errorf("ecmasterctl: file read requires <remote-name> <length> <local-path>")
		}
		remoteName, localPath := args[1], args[3]
		length, err := strconv.Atoi(args[2])
		if err != nil || length < 0 {
			return fmt.Errorf("ecmasterctl: length: %w", err)
		}
		req := sess.Client.IssueFileRead(pos, remoteName, length)
		if err := sess.Client.Await(req, fileAwaitBudget); err != nil {
			return fmt.Errorf("ecmasterctl: slave %d: file %q: %w", pos, remoteName, err)
		}
		if err := os.WriteFile(localPath, sess.Client.Data(req), 0o644); err != nil {
			return fmt.Errorf("ecmasterctl: writing %s: %w", localPath, err)
		}
		if !cmdutil.Flags.Quiet {
			fmt.Printf("slave %d: read %q (%d bytes) to %s\n", pos, remoteName, len(sess.Client.Data(req)), localPath)
		}
	case "write":
		if len(args) != 3 {
			return fmt.Errorf("ecmasterctl: file write requires <remote-name> <local-path>")
		}
		remoteName, localPath := args[1], args[2]
		data, err := os.ReadFile(localPath)
		if err != nil {
			return fmt.Errorf("ecmasterctl: reading %s: %w", localPath, err)
		}
		req := sess.Client.IssueFileWrite(pos, remoteName, data)
		if err := sess.Client.Await(req, fileAwaitBudget); err != nil {
			return fmt.Errorf("ecmasterctl: slave %d: file %q: %w", pos, remoteName, err)
		}
		if !cmdutil.Flags.Quiet {
			fmt.Printf("slave %d: wrote %q (%d bytes) from %s\n", pos, remoteName, len(data), localPath)
		}
	default:
		return fmt.Errorf("ecmasterctl: unknown file operation %q (want read or write)", op)
	}
	return nil
}
