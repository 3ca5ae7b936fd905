// Command cardapio runs the menu and order core from a terminal.
package main

import (
	"fmt"
	"os"
)

// Version is set at build time
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
