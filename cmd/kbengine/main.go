// Package main provides the entry point for the kbengine CLI.
package main

import (
	"os"

	"github.com/helpbase/kbengine/cmd/kbengine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
