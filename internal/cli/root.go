// Package cli implements the queuedeck command tree.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/QueueDeck/QueueDeck/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"   ___                        ____            _\n" +
		"  / _ \\ _   _  ___ _   _  ___|  _ \\  ___  ___| | __\n" +
		" | | | | | | |/ _ \\ | | |/ _ \\ | | |/ _ \\/ __| |/ /\n" +
		" | |_| | |_| |  __/ |_| |  __/ |_| |  __/ (__|   <\n" +
		"  \\__\\_\\\\__,_|\\___|\\__,_|\\___|____/ \\___|\\___|_|\\_\\\n"
)

var rootCmd = &cobra.Command{
	Use:   "queuedeck",
	Short: "QueueDeck - live support-chat dispatch dashboard",
	Long:  color.CyanString(logo) + "\nQueue assignment and realtime chat dispatch for support teams.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
}
