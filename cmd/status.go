package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/andresmejia3/facegate/internal/camera"
	"github.com/andresmejia3/facegate/internal/flow"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/fatih/color"
)

// errFailed is returned by commands whose status line already explains the failure.
var errFailed = errors.New("facegate: action failed")

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

// report prints the status line for out and maps failures to errFailed.
func report(w io.Writer, out flow.Outcome) error {
	switch out.Kind {
	case flow.Success:
		okColor.Fprintf(w, "✅ %s\n", out.Status)
		if out.Err != nil {
			warnColor.Fprintf(w, "⚠️  %v\n", out.Err)
		}
		return nil
	case flow.Skipped:
		dimColor.Fprintf(w, "… %s\n", nonEmpty(out.Status, "nothing to do"))
		return nil
	case flow.CameraError:
		var devErr *camera.DeviceError
		if errors.As(out.Err, &devErr) {
			utils.ShowError(out.Status, devErr, devErr.Cmd)
		} else {
			failColor.Fprintf(w, "📷 %s: %v\n", out.Status, out.Err)
		}
		return errFailed
	default:
		failColor.Fprintf(w, "❌ %s\n", nonEmpty(out.Status, out.Kind.String()))
		if out.Err != nil && rootOpts.Verbose {
			dimColor.Fprintf(w, "   %v\n", out.Err)
		}
		return errFailed
	}
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%-12s %s\n", dimColor.Sprint(label), value)
}
