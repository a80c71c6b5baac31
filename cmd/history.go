package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded logins, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runHistory(cmd)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Maximum rows to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command) error {
	history, err := DB.History(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list logins: %w", err)
	}

	w := cmd.OutOrStdout()
	if len(history) == 0 {
		fmt.Fprintln(w, "No logins recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "#\tWHEN\tEMAIL\tMETHOD")
	fmt.Fprintln(tw, "-\t----\t-----\t------")
	for i, m := range history {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, m.LoggedInAt.Local().Format("2006-01-02 15:04:05"), m.Email, m.Method)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to write table: %v\n", err)
	}
	return nil
}
