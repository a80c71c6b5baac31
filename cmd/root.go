package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/andresmejia3/facegate/internal/authapi"
	"github.com/andresmejia3/facegate/internal/camera"
	"github.com/andresmejia3/facegate/internal/config"
	"github.com/andresmejia3/facegate/internal/logging"
	"github.com/andresmejia3/facegate/internal/store"
	"github.com/spf13/cobra"
)

// Options holds the global flags shared by every subcommand
type Options struct {
	ConfigPath string
	APIBase    string
	SessionDB  string
	Device     string
	Format     string
	Frames     string
	Verbose    bool
}

var (
	// Cfg is the resolved configuration (defaults, file, env, flags)
	Cfg *config.Config
	// DB is the session store shared by subcommands
	DB *store.Store

	rootOpts Options
	flushLog = func() {}
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "facegate",
	Short:         "Face and password login client for the Auth Service",
	Version:       Version,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.LoadOptions{Path: rootOpts.ConfigPath})
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		flush, err := logging.InitLogger(logging.Options{
			File:    config.ExpandPath(cfg.Log.File),
			Level:   cfg.Log.Level,
			Console: rootOpts.Verbose,
		})
		if err != nil {
			return err
		}
		flushLog = flush
		logging.DebugLog("Running %s against %s", cmd.CommandPath(), cfg.API.BaseURL)

		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.Open(cmd.Context(), cfg.Session.DSN)
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		Cfg = cfg
		return nil
	},
}

// teardown runs after every command, including failed ones (cobra skips
// post-run hooks when RunE errors).
func teardown() {
	if DB != nil {
		DB.Close()
		DB = nil
	}
	flushLog()
	flushLog = func() {}
}

// applyFlags lets explicitly set flags override file and environment values.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("api") {
		cfg.API.BaseURL = rootOpts.APIBase
	}
	if flags.Changed("session-db") {
		cfg.Session.DSN = rootOpts.SessionDB
	}
	if flags.Changed("device") {
		cfg.Camera.Device = rootOpts.Device
	}
	if flags.Changed("format") {
		cfg.Camera.Format = rootOpts.Format
	}
	if flags.Changed("frames") {
		cfg.Camera.Frames = nil
		for _, p := range strings.Split(rootOpts.Frames, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Camera.Frames = append(cfg.Camera.Frames, p)
			}
		}
	}
	if rootOpts.Verbose {
		cfg.Log.Level = "debug"
	}
}

// newAPI builds the Auth Service client from the resolved config.
func newAPI() *authapi.Client {
	return authapi.New(Cfg.API.BaseURL, authapi.WithTimeout(Cfg.API.Timeout))
}

// newCamera returns the still-image provider when frames are configured, ffmpeg otherwise.
func newCamera() camera.Provider {
	if len(Cfg.Camera.Frames) > 0 {
		return camera.Files{Paths: Cfg.Camera.Frames}
	}
	return camera.FFmpeg{Format: Cfg.Camera.Format, Device: Cfg.Camera.Device}
}

func acquireOptions() camera.AcquireOptions {
	return camera.AcquireOptions{
		Attempts:     Cfg.Camera.StartAttempts,
		Backoff:      Cfg.Camera.StartBackoff,
		ReadyTimeout: Cfg.Camera.ReadyTimeout,
	}
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	err := rootCmd.ExecuteContext(ctx)
	teardown()
	if err != nil {
		// failed outcomes were already printed as a status line
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootOpts.ConfigPath, "config", "", "YAML config file (default: "+config.DefaultPath()+")")
	pf.StringVar(&rootOpts.APIBase, "api", "", "Auth Service base URL (default: http://127.0.0.1:5000)")
	pf.StringVar(&rootOpts.SessionDB, "session-db", "", "Session store DSN, sqlite://path or postgres://... (default: sqlite://~/.facegate/session.db)")
	pf.StringVar(&rootOpts.Device, "device", "", "Capture device passed to ffmpeg -i")
	pf.StringVar(&rootOpts.Format, "format", "", "Capture format passed to ffmpeg -f (v4l2, avfoundation, dshow, lavfi)")
	pf.StringVar(&rootOpts.Frames, "frames", "", "Comma-separated JPEG/PNG files to use instead of the webcam")
	pf.BoolVarP(&rootOpts.Verbose, "verbose", "v", false, "Log debug output to stderr")
}
