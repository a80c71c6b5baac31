package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/facegate/internal/flow"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginOpts struct {
	Email    string
	Password string
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with a password or your face",
}

var loginPasswordCmd = &cobra.Command{
	Use:   "password",
	Short: "Log in with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		password := loginOpts.Password
		if !cmd.Flags().Changed("password") {
			var err error
			if password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
				return err
			}
		}

		l := newLogin()
		out := l.Password(cmd.Context(), loginOpts.Email, password)
		return finishLogin(cmd, out)
	},
}

var loginFaceCmd = &cobra.Command{
	Use:   "face",
	Short: "Log in by capturing one frame from the camera",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		fmt.Fprintln(cmd.ErrOrStderr(), "📷 Starting camera...")
		out := newLogin().Face(cmd.Context(), loginOpts.Email)
		return finishLogin(cmd, out)
	},
}

func init() {
	for _, c := range []*cobra.Command{loginPasswordCmd, loginFaceCmd} {
		c.Flags().StringVarP(&loginOpts.Email, "email", "e", "", "Account email")
		loginCmd.AddCommand(c)
	}
	loginPasswordCmd.Flags().StringVarP(&loginOpts.Password, "password", "p", "", "Account password (prompted when omitted)")
	rootCmd.AddCommand(loginCmd)
}

func newLogin() *flow.Login {
	return &flow.Login{
		API:      newAPI(),
		Camera:   newCamera(),
		Acquire:  acquireOptions(),
		Sessions: DB,
	}
}

// finishLogin prints the outcome and, on success, shows the dashboard.
func finishLogin(cmd *cobra.Command, out flow.Outcome) error {
	w := cmd.OutOrStdout()
	if err := report(w, out); err != nil {
		return err
	}
	if out.Navigate {
		fmt.Fprintln(w)
		return showDashboard(cmd.Context(), w, dashboardLimit)
	}
	return nil
}

// readPassword prompts without echo on a terminal and reads one line otherwise.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
