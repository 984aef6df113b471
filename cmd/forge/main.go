// Package main provides the entry point for the forge CLI.
package main

import (
	"os"

	"github.com/forgecore/forge/cmd/forge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
