// Package main is the entry point for the tyto IPv4 stack daemon.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/tyto/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
