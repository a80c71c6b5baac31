package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/facegate/internal/config"
	"github.com/spf13/cobra"
)

var (
	resetDB   bool
	resetLogs bool
	resetYes  bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset local state (session store, log file)",
	Long:  "Clears local data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetLogs {
			resetDB = true
			resetLogs = true
		}

		reader := bufio.NewReader(cmd.InOrStdin())
		w := cmd.OutOrStdout()

		if resetDB {
			if resetYes || confirm(reader, w, "⚠️  Are you sure you want to wipe the session store and login history?") {
				fmt.Fprintln(w, "🗑️  Clearing session store...")
				if err := DB.Reset(cmd.Context()); err != nil {
					return fmt.Errorf("failed to reset session store: %w", err)
				}
			}
		}

		if resetLogs {
			if resetYes || confirm(reader, w, "⚠️  Are you sure you want to delete the log file?") {
				fmt.Fprintln(w, "🗑️  Clearing log file...")
				removeFile(config.ExpandPath(Cfg.Log.File))
			}
		}

		fmt.Fprintln(w, "✨ Reset complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db", false, "Clear the session store")
	resetCmd.Flags().BoolVar(&resetLogs, "logs", false, "Delete the log file")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
