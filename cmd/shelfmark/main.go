// Package main provides the entry point for the shelfmark CLI.
package main

import (
	"os"

	"github.com/shelfmark/shelfmark/cmd/shelfmark/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
