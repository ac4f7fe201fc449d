// Package main provides the entry point for the metaindexer CLI.
package main

import (
	"os"

	"github.com/marcinmilkowski/metaindexer/cmd/metaindexer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
