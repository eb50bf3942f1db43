package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/QueueDeck/QueueDeck/internal/config"
	"github.com/QueueDeck/QueueDeck/internal/store"
)

var (
	seedName  string
	seedEmail string
	seedRole  string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Register a staff member in the local store",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("QueueDeck Seed")

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config error: %v\n", err)
			os.Exit(1)
		}
		st, err := store.Open(cfg.Store.Path, nil)
		if err != nil {
			fmt.Printf("Failed to open store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		emp, err := st.CreateEmployee(&store.Employee{
			Name:  seedName,
			Email: seedEmail,
			Role:  seedRole,
		})
		if err != nil {
			fmt.Printf("Failed to create employee: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Employee created: %s (%s)\n", emp.Name, emp.ID)
		fmt.Println("Add a matching credential with this user_id to auth.credentials in the config.")
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedName, "name", "", "employee name")
	seedCmd.Flags().StringVar(&seedEmail, "email", "", "employee email")
	seedCmd.Flags().StringVar(&seedRole, "role", "agent", "employee role")
	seedCmd.MarkFlagRequired("name")
	seedCmd.MarkFlagRequired("email")
}
