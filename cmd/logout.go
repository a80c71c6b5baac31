package cmd

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/andresmejia3/facegate/internal/logging"
	"github.com/andresmejia3/facegate/internal/store"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var logoutYes bool

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the logged-in identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()
		w := cmd.OutOrStdout()

		current, err := DB.CurrentSession(ctx)
		if errors.Is(err, store.ErrNoSession) {
			fmt.Fprintln(w, "Not logged in.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}

		if !logoutYes && !confirm(bufio.NewReader(cmd.InOrStdin()), w, fmt.Sprintf("Log out %s?", current.Email)) {
			fmt.Fprintln(w, "Aborted.")
			return nil
		}

		if err := DB.ClearSession(ctx); err != nil && !errors.Is(err, store.ErrNoSession) {
			return fmt.Errorf("failed to clear session: %w", err)
		}
		logging.InfoLog("Logged out %s", utils.HashEmail(current.Email))
		okColor.Fprintf(w, "👋 Logged out %s\n", current.Email)
		return nil
	},
}

func init() {
	logoutCmd.Flags().BoolVarP(&logoutYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(logoutCmd)
}
