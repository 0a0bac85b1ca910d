// Package main provides the wellplan CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/wellplan/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
