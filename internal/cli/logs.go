package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newLogsCmd creates the 'logs' command.
func newLogsCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the most recent buffered daemon log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			lines, err := client.ListLogs(GetContext(), count)
			if err != nil {
				return err
			}

			for _, l := range lines {
				fmt.Printf("%s [%s] %s\n", l.Timestamp, l.Level, l.Message)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 100, "Number of recent log lines to show")
	return cmd
}
