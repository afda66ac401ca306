package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List connected remote accounts",
	Long: `List the remote accounts whose files can be uploaded with --remote.

Accounts are configured in the uplink config file; authorization itself is
handled outside this tool.`,
	Args: cobra.NoArgs,
	RunE: runAccounts,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
}

func runAccounts(cmd *cobra.Command, args []string) error {
	accs := registry.All()
	if len(accs) == 0 {
		fmt.Println("No accounts configured")
		return nil
	}

	fmt.Printf("%-20s %s\n", "ID", "LABEL")
	fmt.Println("--------------------------------------------")
	for _, a := range accs {
		fmt.Printf("%-20s %s\n", a.ID, a.Label)
	}
	return nil
}
