package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/QueueDeck/QueueDeck/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("QueueDeck Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("QueueDeck Status")
		fmt.Printf("Version: %s\n", version)

		path, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(path); statErr == nil {
				fmt.Println("Config:  ✓ Found (" + path + ")")
			} else {
				fmt.Println("Config:  ✗ Not found (" + path + ")")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config:  ? Unable to load: %v\n", err)
			return
		}
		if _, err := os.Stat(cfg.Store.Path); err == nil {
			fmt.Println("Store:   ✓ " + cfg.Store.Path)
		} else {
			fmt.Println("Store:   ✗ Not created yet (" + cfg.Store.Path + ")")
		}
		if cfg.Relay.Enabled {
			fmt.Println("Relay:   ✓ Enabled (" + cfg.Relay.Brokers + ")")
		} else {
			fmt.Println("Relay:   ✗ Disabled")
		}
		if cfg.Slack.Enabled {
			fmt.Println("Slack:   ✓ Enabled")
		} else {
			fmt.Println("Slack:   ✗ Disabled")
		}
		fmt.Printf("Cap:     %d active chats per agent\n", cfg.Dispatch.MaxActiveChats)
	},
}
