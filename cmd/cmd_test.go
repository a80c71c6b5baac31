package cmd

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/facegate/internal/authapi"
	"github.com/andresmejia3/facegate/internal/authtest"
	"github.com/andresmejia3/facegate/internal/config"
	"github.com/andresmejia3/facegate/internal/flow"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type harness struct {
	t     *testing.T
	srv   *authtest.Server
	dsn   string
	frame string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, kv := range os.Environ() {
		if key, _, _ := strings.Cut(kv, "="); strings.HasPrefix(key, "FACEGATE_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}

	srv := authtest.New()
	t.Cleanup(srv.Close)

	frame := filepath.Join(dir, "face.png")
	f, err := os.Create(frame)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 32, 32))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	return &harness{t: t, srv: srv, dsn: "sqlite://" + filepath.Join(dir, "session.db"), frame: frame}
}

// run executes the CLI with the harness' service, store and camera wired in.
func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	resetFlags(rootCmd)

	full := append(args, "--api", h.srv.URL, "--session-db", h.dsn, "--frames", h.frame)
	var out bytes.Buffer
	rootCmd.SetArgs(full)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))

	err := rootCmd.ExecuteContext(context.Background())
	teardown()
	return out.String(), err
}

// resetFlags puts every flag back to its default between runs.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func TestPasswordLoginShowsDashboard(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("a@b.com", "pw123")

	out, err := h.run("", "login", "password", "--email", "a@b.com", "--password", "pw123")
	if err != nil {
		t.Fatalf("login failed: %v\n%s", err, out)
	}
	for _, want := range []string{"Login successful", "Dashboard", "a@b.com", "password"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = h.run("", "whoami")
	if err != nil || !strings.Contains(out, "a@b.com") {
		t.Errorf("whoami after login: %v\n%s", err, out)
	}

	out, err = h.run("", "logout", "--yes")
	if err != nil || !strings.Contains(out, "Logged out a@b.com") {
		t.Errorf("logout: %v\n%s", err, out)
	}

	out, err = h.run("", "whoami")
	if !errors.Is(err, errFailed) || !strings.Contains(out, "Not logged in") {
		t.Errorf("whoami after logout: %v\n%s", err, out)
	}
}

func TestPasswordLoginRejected(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("a@b.com", "pw123")

	out, err := h.run("", "login", "password", "--email", "a@b.com", "--password", "wrong")
	if !errors.Is(err, errFailed) {
		t.Fatalf("expected errFailed, got %v", err)
	}
	if !strings.Contains(out, "Invalid password") {
		t.Errorf("output missing server message:\n%s", out)
	}
	if _, err := h.run("", "whoami"); !errors.Is(err, errFailed) {
		t.Error("rejected login must not store a session")
	}
}

func TestPasswordReadFromStdin(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("a@b.com", "pw123")

	out, err := h.run("pw123\n", "login", "password", "--email", "a@b.com")
	if err != nil {
		t.Fatalf("login failed: %v\n%s", err, out)
	}
	if got := h.srv.Requests(authapi.PathLoginPassword)[0].Password; got != "pw123" {
		t.Errorf("sent password %q", got)
	}
}

func TestServerDownIsServerError(t *testing.T) {
	h := newHarness(t)
	h.srv.Enqueue(authapi.PathLoginPassword, authtest.Reply{Drop: true})

	out, err := h.run("", "login", "password", "--email", "a@b.com", "--password", "pw123")
	if !errors.Is(err, errFailed) || !strings.Contains(out, flow.StatusServerError) {
		t.Errorf("expected server error status: %v\n%s", err, out)
	}
}

func TestFaceLogin(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("a@b.com", "pw123")

	out, err := h.run("", "login", "face", "--email", "a@b.com")
	if err != nil {
		t.Fatalf("face login failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "face") {
		t.Errorf("dashboard should show the face method:\n%s", out)
	}
	req := h.srv.Requests(authapi.PathLoginFace)
	if len(req) != 1 || req[0].ImageContentType != "image/jpeg" {
		t.Errorf("unexpected face requests: %+v", req)
	}
}

func TestFaceLoginRequiresEmail(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "login", "face")
	if !errors.Is(err, errFailed) || !strings.Contains(out, flow.StatusEmailRequired) {
		t.Errorf("expected email validation: %v\n%s", err, out)
	}
	if h.srv.Count("") != 0 {
		t.Error("request sent without an email")
	}
}

func TestAutoRegister(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "register", "--auto", "--interval", "0s", "--email", "a@b.com", "--password", "pw123")
	if err != nil {
		t.Fatalf("register failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Registration completed") {
		t.Errorf("output missing completion:\n%s", out)
	}
	if got := h.srv.Samples("a@b.com"); got != 5 {
		t.Errorf("server stored %d samples", got)
	}

	out, err = h.run("", "login", "face", "--email", "a@b.com")
	if err != nil {
		t.Errorf("face login after registration failed: %v\n%s", err, out)
	}
}

func TestAutoRegisterWithoutCompletion(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 10; i++ {
		h.srv.Enqueue(authapi.PathRegister, authtest.JSON(true, "Face saved", false))
	}

	out, err := h.run("", "register", "--auto", "--interval", "0s", "--email", "a@b.com", "--password", "pw123")
	if !errors.Is(err, errFailed) {
		t.Fatalf("expected errFailed, got %v", err)
	}
	if !strings.Contains(out, "Registration incomplete (5 / 5") {
		t.Errorf("output:\n%s", out)
	}
	if got := h.srv.Count(authapi.PathRegister); got != 5 {
		t.Errorf("%d requests, want 5", got)
	}
}

func TestAutoRegisterRequiresCredentials(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "register", "--auto", "--email", "a@b.com", "--password", "")
	if !errors.Is(err, errFailed) || !strings.Contains(out, flow.StatusCredentialsRequired) {
		t.Errorf("expected credential validation: %v\n%s", err, out)
	}
}

func TestInteractiveRegisterNeedsTerminal(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "register", "--email", "a@b.com", "--password", "pw123")
	if err == nil || !strings.Contains(err.Error(), "--auto") {
		t.Errorf("expected terminal error, got %v", err)
	}
}

func TestLogoutAskFirst(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("a@b.com", "pw123")
	if _, err := h.run("", "login", "password", "--email", "a@b.com", "--password", "pw123"); err != nil {
		t.Fatal(err)
	}

	out, err := h.run("n\n", "logout")
	if err != nil || !strings.Contains(out, "Aborted") {
		t.Errorf("logout decline: %v\n%s", err, out)
	}
	if _, err := h.run("", "whoami"); err != nil {
		t.Error("declined logout cleared the session")
	}

	out, err = h.run("y\n", "logout")
	if err != nil || !strings.Contains(out, "Logged out") {
		t.Errorf("logout accept: %v\n%s", err, out)
	}
}

func TestHistoryAndReset(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("a@b.com", "pw123")
	for i := 0; i < 2; i++ {
		if _, err := h.run("", "login", "password", "--email", "a@b.com", "--password", "pw123"); err != nil {
			t.Fatal(err)
		}
	}

	out, err := h.run("", "history")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "a@b.com") != 2 {
		t.Errorf("expected two history rows:\n%s", out)
	}

	out, err = h.run("", "reset", "--db", "--yes")
	if err != nil || !strings.Contains(out, "Reset complete") {
		t.Fatalf("reset: %v\n%s", err, out)
	}

	out, err = h.run("", "history")
	if err != nil || !strings.Contains(out, "No logins recorded") {
		t.Errorf("history after reset: %v\n%s", err, out)
	}
}

func TestApplyFlags(t *testing.T) {
	resetFlags(rootCmd)
	defer resetFlags(rootCmd)

	if err := rootCmd.ParseFlags([]string{"--api", "http://example.test", "--frames", "a.png, b.png", "--verbose"}); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{}
	cfg.API.BaseURL = "http://127.0.0.1:5000"
	cfg.Camera.Device = "/dev/video0"
	cfg.Log.Level = "info"

	applyFlags(rootCmd, cfg)

	if cfg.API.BaseURL != "http://example.test" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if len(cfg.Camera.Frames) != 2 || cfg.Camera.Frames[1] != "b.png" {
		t.Errorf("Frames = %q", cfg.Camera.Frames)
	}
	if cfg.Camera.Device != "/dev/video0" {
		t.Error("unset flag overwrote device")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("verbose should force debug, got %q", cfg.Log.Level)
	}
}

func TestReport(t *testing.T) {
	tests := []struct {
		name    string
		out     flow.Outcome
		wantErr bool
		want    string
	}{
		{name: "success", out: flow.Outcome{Kind: flow.Success, Status: "Login successful"}, want: "Login successful"},
		{name: "success with warning", out: flow.Outcome{Kind: flow.Success, Status: "ok", Err: errors.New("disk full")}, want: "disk full"},
		{name: "skipped", out: flow.Outcome{Kind: flow.Skipped}, want: "nothing to do"},
		{name: "rejected", out: flow.Outcome{Kind: flow.Rejected, Status: "Invalid password"}, wantErr: true, want: "Invalid password"},
		{name: "camera", out: flow.Outcome{Kind: flow.CameraError, Status: flow.StatusCameraUnavailable, Err: errors.New("busy")}, wantErr: true, want: "busy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := report(&buf, tt.out)
			if tt.wantErr != errors.Is(err, errFailed) {
				t.Errorf("report() error = %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q missing %q", buf.String(), tt.want)
			}
		})
	}
}
