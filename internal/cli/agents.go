package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newAgentsCmd creates the 'agents' command group.
func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect the agent fabric's connected agents",
	}
	cmd.AddCommand(newAgentsListCmd())
	return cmd
}

func newAgentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List currently registered agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			agents, err := client.ListAgents(GetContext())
			if err != nil {
				return err
			}

			if len(agents) == 0 {
				fmt.Println("No agents connected.")
				return nil
			}

			for _, a := range agents {
				status := "disconnected"
				if a.Connected {
					status = "connected"
				}
				fmt.Printf("%-20s  %s\n", a.Name, status)
			}
			return nil
		},
	}
}
