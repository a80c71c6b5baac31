package utils

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (FFmpeg logs)
// This ensures we don't lose the reason a capture device refused to open.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe
// It prepares the command for execution but does not start it.
func NewSafeCommand(name string, args ...string) *SafeCommand {
	cmd := exec.Command(name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints the facegate error box without exiting.
// Captured FFmpeg logs are dumped when a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	writeErrorBox(os.Stderr, context, err, s)
}

// Die is the unified exit strategy for fatal setup failures.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

func writeErrorBox(w io.Writer, context string, err error, s *SafeCommand) {
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "🚨 FACEGATE ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(w, "DETAILS: %v\n", err)
	}

	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(w, "\nFFMPEG LOGS:\n%s\n", strings.TrimSpace(s.Stderr.String()))
	}
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}

// --- 2. Frame Stream (Camera capture) ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// NewFFmpegCaptureCmd creates a decoder pipe reading from a live capture device.
// FFmpeg re-encodes every frame as MJPEG on Stdout so Go can split the stream.
func NewFFmpegCaptureCmd(format, device string) *SafeCommand {
	// -hide_banner and -loglevel error keep the stderr buffer small
	args := []string{"-hide_banner", "-loglevel", "error"}
	if format != "" {
		args = append(args, "-f", format)
	}
	args = append(args, "-i", device, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "2", "-")
	return NewSafeCommand("ffmpeg", args...)
}

// --- 3. Privacy ---

// HashEmail creates a consistent hash for logging without exposing PII
func HashEmail(email string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(hash[:])[:12]
}
