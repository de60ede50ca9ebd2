// Command syncctl is a demonstration CLI over the sync engine library:
// it links a device to a principal, runs sync passes, and reports
// status, retry state, and conflict history.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
