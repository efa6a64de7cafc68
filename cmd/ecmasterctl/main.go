// Command ecmasterctl is the command-line control tool for one master
// instance (spec.md §6): enumerate slaves, inspect or request lifecycle
// state, issue parameter-object (SDO) reads/writes, and report domain
// working-counter status.
package main

import (
	"fmt"
	"os"

	"github.com/go-ecat/ecmaster/cmd/ecmasterctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ecmasterctl:", err)
		os.Exit(1)
	}
	os.Exit(0)
}
