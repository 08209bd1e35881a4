// Package main provides the bustracker command.
package main

import (
	"os"

	"github.com/leapstack-labs/bustracker/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
