// Package main provides the entry point for the ragmill CLI.
package main

import (
	"os"

	"github.com/ragmill/ragmill/cmd/ragmill/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
