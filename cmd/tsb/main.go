// Package main is the entry point for the tsb application.
package main

import (
	"os"

	"github.com/jmylchreest/tsb/cmd/tsb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
