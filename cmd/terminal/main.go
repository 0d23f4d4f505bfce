// Command terminal drives the POS host switch: online sales, host tests,
// settlement and a long-running mode with scheduled echoes and the admin
// API.
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
