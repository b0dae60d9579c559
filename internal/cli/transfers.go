package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	stringsutil "github.com/overlayd/overlayd/internal/util/strings"
)

// newTransfersCmd creates the 'transfers' command group.
func newTransfersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfers",
		Short: "Inspect and cancel in-flight transfers",
	}
	cmd.AddCommand(newTransfersListCmd())
	cmd.AddCommand(newTransfersCancelCmd())
	return cmd
}

func newTransfersListCmd() *cobra.Command {
	var direction string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transfers, optionally filtered by direction",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			transfers, err := client.ListTransfers(GetContext(), direction)
			if err != nil {
				return err
			}

			if len(transfers) == 0 {
				fmt.Println("No transfers.")
				return nil
			}
			fmt.Printf("%d %s:\n", len(transfers), stringsutil.Pluralize("transfer", int64(len(transfers))))

			for _, t := range transfers {
				fmt.Printf("%s  %-8s  %-6s  %-20s  %s  %d/%d bytes",
					t.ID, t.Direction, t.State, t.Username, t.RemoteFilename, t.BytesTransferred, t.Size)
				if t.Group != "" {
					fmt.Printf("  [%s]", t.Group)
				}
				if t.Err != "" {
					fmt.Printf("  error: %s", t.Err)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "", `Filter by direction ("upload" or "download"; empty = both)`)
	return cmd
}

func newTransfersCancelCmd() *cobra.Command {
	var direction, username string

	cmd := &cobra.Command{
		Use:   "cancel <transfer-id>",
		Short: "Cancel a single transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if direction == "" || username == "" {
				return fmt.Errorf("--direction and --username are both required")
			}
			client := newClient()
			if err := client.CancelTransfer(GetContext(), direction, username, args[0]); err != nil {
				return err
			}
			fmt.Printf("Cancelled %s.\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "", `Transfer direction ("upload" or "download")`)
	cmd.Flags().StringVar(&username, "username", "", "Peer username the transfer runs against")
	return cmd
}
