package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andresmejia3/facegate/internal/flow"
	"github.com/andresmejia3/facegate/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var registerOpts struct {
	Email    string
	Password string
	Auto     bool
	Interval time.Duration
	Attempts int
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register your face by submitting five camera samples",
	Long: `Opens the registration screen: press Start to attach the camera, then
Take Sample once per face sample until the service reports completion.
With --auto the samples are captured unattended at a fixed interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if cmd.Flags().Changed("interval") {
			Cfg.Register.Interval = registerOpts.Interval
		}
		if cmd.Flags().Changed("attempts") {
			Cfg.Register.Attempts = registerOpts.Attempts
		}

		reg := &flow.Registration{API: newAPI(), Camera: newCamera(), Acquire: acquireOptions()}
		if registerOpts.Auto {
			password := registerOpts.Password
			if !cmd.Flags().Changed("password") {
				var err error
				if password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			return runAutoRegister(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), reg, registerOpts.Email, password)
		}
		return runInteractiveRegister(cmd, reg)
	},
}

func init() {
	registerCmd.Flags().StringVarP(&registerOpts.Email, "email", "e", "", "Account email")
	registerCmd.Flags().StringVarP(&registerOpts.Password, "password", "p", "", "Account password")
	registerCmd.Flags().BoolVar(&registerOpts.Auto, "auto", false, "Capture samples without the interactive screen")
	registerCmd.Flags().DurationVar(&registerOpts.Interval, "interval", time.Second, "Pause between automatic samples")
	registerCmd.Flags().IntVar(&registerOpts.Attempts, "attempts", 15, "Maximum automatic capture attempts, rejected samples included")
	rootCmd.AddCommand(registerCmd)
}

func runInteractiveRegister(cmd *cobra.Command, reg *flow.Registration) error {
	in, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(in.Fd())) {
		return errors.New("interactive registration needs a terminal; use --auto")
	}

	model := tui.New(cmd.Context(), reg, registerOpts.Email, registerOpts.Password)
	p := tea.NewProgram(model,
		tea.WithContext(cmd.Context()),
		tea.WithInput(in),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	final, err := p.Run()

	m, _ := final.(tui.Model)
	s := m.Session()
	if s != nil {
		// releases the camera when the user quits mid-registration
		s.Close()
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("registration screen failed: %w", err)
	}

	if s == nil || !s.Completed() {
		accepted := 0
		if s != nil {
			accepted = s.SampleCount()
		}
		return report(cmd.OutOrStdout(), flow.Outcome{
			Kind:   flow.Rejected,
			Status: fmt.Sprintf("Registration incomplete (%d / %d samples accepted)", accepted, flow.MaxSamples),
		})
	}
	return report(cmd.OutOrStdout(), flow.Outcome{Kind: flow.Success, Status: s.Status(), Completed: true})
}

// runAutoRegister starts a session and presses Take Sample on a timer until
// the service reports completion, the sample ceiling is hit or attempts run out.
func runAutoRegister(ctx context.Context, out, progress io.Writer, reg *flow.Registration, email, password string) error {
	s, begin := reg.Begin(ctx, email, password)
	if err := report(out, begin); err != nil {
		return err
	}
	defer s.Close()

	bar := progressbar.NewOptions(flow.MaxSamples,
		progressbar.OptionSetDescription("📸 Registering face"),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	attempts := Cfg.Register.Attempts
	for i := 0; i < attempts && !s.Completed(); i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				bar.Exit()
				return ctx.Err()
			case <-time.After(Cfg.Register.Interval):
			}
		}

		res := s.Capture(ctx)
		bar.Set(s.SampleCount())
		if res.Kind == flow.Skipped {
			break
		}
		if !res.OK() {
			bar.Describe("📸 " + res.Status)
		}
	}
	bar.Finish()

	if !s.Completed() {
		return report(out, flow.Outcome{
			Kind:   flow.Rejected,
			Status: fmt.Sprintf("Registration incomplete (%d / %d samples accepted): %s", s.SampleCount(), flow.MaxSamples, s.Status()),
		})
	}
	return report(out, flow.Outcome{Kind: flow.Success, Status: s.Status(), Completed: true})
}
