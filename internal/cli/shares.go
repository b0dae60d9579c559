package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/overlayd/overlayd/internal/util/filter"
	stringsutil "github.com/overlayd/overlayd/internal/util/strings"
)

// newSharesCmd creates the 'shares' command group.
func newSharesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shares",
		Short: "Inspect and control the shared-file catalog",
	}
	cmd.AddCommand(newSharesListCmd())
	cmd.AddCommand(newSharesRescanCmd())
	return cmd
}

func newSharesListCmd() *cobra.Command {
	var include, exclude, search, path string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List shared directories and their files",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			dirs, err := client.ListShares(GetContext())
			if err != nil {
				return err
			}

			dirs = filter.ApplyToDirectories(dirs, filter.Config{
				Include:     filter.ParsePatternList(include),
				Exclude:     filter.ParsePatternList(exclude),
				Search:      filter.ParsePatternList(search),
				PathInclude: filter.ParsePatternList(path),
			})

			if len(dirs) == 0 {
				fmt.Println("No shared directories.")
				return nil
			}

			for _, dir := range dirs {
				fmt.Printf("%s (%d %s)\n", dir.Path, len(dir.Files), stringsutil.Pluralize("file", int64(len(dir.Files))))
				for _, f := range dir.Files {
					fmt.Printf("  %s (%d bytes)\n", f.Name, f.Size)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&include, "include", "", "Comma-separated glob patterns a file's name must match")
	cmd.Flags().StringVar(&exclude, "exclude", "", "Comma-separated glob patterns a file's name must not match")
	cmd.Flags().StringVar(&search, "search", "", "Comma-separated substrings a file's name must all contain")
	cmd.Flags().StringVar(&path, "path", "", "Comma-separated glob patterns (supporting **) matched against directory/name")

	return cmd
}

func newSharesRescanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rescan",
		Short: "Trigger an immediate share index refill",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			if err := client.RescanShares(GetContext()); err != nil {
				return err
			}
			fmt.Println("Rescan triggered.")
			return nil
		},
	}
}
