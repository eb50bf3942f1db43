// Package main is the entry point for the queuedeck CLI.
package main

import (
	"os"

	"github.com/QueueDeck/QueueDeck/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
