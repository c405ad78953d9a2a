// Package main is the entry point for the streamwatch application.
package main

import (
	"os"

	"github.com/angelstreet/streamwatch/cmd/streamwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
