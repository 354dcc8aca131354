// Package main is the entry point for the cqlharness CLI.
//
// cqlharness provisions and removes the named test clusters used by
// integration tests, so a cluster can be prepared before a test run or
// cleaned up after an interrupted one.
//
// Commands: ensure, status, teardown, remove-all.
//
// For detailed usage information, run:
//
//	cqlharness --help
package main

import (
	"fmt"
	"os"

	"github.com/arloliu/cqlharness/cmd/cqlharness/commands"
)

func main() {
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
