// Package main provides the entry point for the kbresolve CLI.
package main

import (
	"os"

	"github.com/conversekit/kbresolve/cmd/kbresolve/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
