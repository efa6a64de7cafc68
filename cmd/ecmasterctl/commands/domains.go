package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ecat/ecmaster/cmd/ecmasterctl/cmdutil"
)

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "Show working-counter status for each process-image domain",
	RunE:  runDomains,
}

func init() {
	rootCmd.AddCommand(domainsCmd)
}

func runDomains(cmd *cobra.Command, args []string) error {
	sess, err := cmdutil.Connect()
	if err != nil {
		return err
	}
	defer sess.Close()

	names := sess.Client.Domains()
	if !cmdutil.Flags.Quiet {
		fmt.Printf("%-20s %s\n", "DOMAIN", "WKC")
	}
	for _, name := range names {
		status, ok := sess.Client.DomainStatus(name)
		if !ok {
			continue
		}
		fmt.Printf("%-20s %s\n", name, status)
	}
	return nil
}
