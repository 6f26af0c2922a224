// Package main implements the devlensctl operator CLI.
package main

import (
	"os"

	"github.com/devlens/devlens/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
