package users

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/SevenofThr4wn/HardwareStore/cmd/storeapi/cmd/cmdutil"
	"github.com/SevenofThr4wn/HardwareStore/internal/repository"
)

var (
	limitFlag  int
	offsetFlag int
	jsonFlag   bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local users",
	RunE: func(cmd *cobra.Command, args []string) error {
		if limitFlag < 0 || offsetFlag < 0 {
			return fmt.Errorf("--limit and --offset must not be negative")
		}
		ctx := cmd.Context()

		stack, err := cmdutil.OpenStack(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer stack.Close()

		users, err := stack.Users.List(ctx, repository.ListOptions{Limit: limitFlag, Offset: offsetFlag})
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonFlag {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(users)
		}

		if len(users) == 0 {
			fmt.Fprintln(out, "No users found")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EXTERNAL ID\tUSERNAME\tEMAIL\tROLE\tACTIVE\tLAST LOGIN")
		for _, u := range users {
			lastLogin := "-"
			if u.LastLoginAt != nil {
				lastLogin = u.LastLoginAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", u.ExternalID, u.Username, u.Email, u.Role, u.Active, lastLogin)
		}
		return w.Flush()
	},
}
