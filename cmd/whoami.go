package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/andresmejia3/facegate/internal/store"
	"github.com/spf13/cobra"
)

const dashboardLimit = 5

var whoamiLimit int

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in identity and recent logins",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return showDashboard(cmd.Context(), cmd.OutOrStdout(), whoamiLimit)
	},
}

func init() {
	whoamiCmd.Flags().IntVarP(&whoamiLimit, "limit", "n", dashboardLimit, "Number of recent logins to show (0 for all)")
	rootCmd.AddCommand(whoamiCmd)
}

// showDashboard prints the current session and the latest logins.
func showDashboard(ctx context.Context, w io.Writer, limit int) error {
	current, err := DB.CurrentSession(ctx)
	if errors.Is(err, store.ErrNoSession) {
		failColor.Fprintln(w, "Not logged in.")
		return errFailed
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	okColor.Fprintln(w, "🔓 Dashboard")
	printField(w, "Email", current.Email)
	printField(w, "Method", string(current.Method))
	printField(w, "Since", current.LoggedInAt.Local().Format("2006-01-02 15:04:05"))

	history, err := DB.History(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to load login history: %w", err)
	}
	if len(history) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tEMAIL\tMETHOD")
	fmt.Fprintln(tw, "----\t-----\t------")
	for _, m := range history {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.LoggedInAt.Local().Format("2006-01-02 15:04"), m.Email, m.Method)
	}
	return tw.Flush()
}
