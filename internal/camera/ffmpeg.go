package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/andresmejia3/facegate/internal/logging"
	"github.com/andresmejia3/facegate/internal/utils"
	"go.uber.org/multierr"
)

const megabyte = 1024 * 1024

// DeviceError carries the FFmpeg process so callers can print its logs.
type DeviceError struct {
	Device string
	Cmd    *utils.SafeCommand
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// FFmpeg captures frames from a device through an ffmpeg child process.
type FFmpeg struct {
	// Format is the ffmpeg input format (v4l2, avfoundation, dshow, lavfi).
	Format string
	Device string
}

type ffmpegStream struct {
	device string
	cmd    *utils.SafeCommand
	stdout io.ReadCloser

	mu     sync.Mutex
	latest []byte
	closed bool

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	scanErr   error

	closeOnce sync.Once
	closeErr  error
}

// Open starts ffmpeg and blocks until the first frame arrives.
func (f FFmpeg) Open(ctx context.Context) (Stream, error) {
	// 1. Initialize the SafeCommand so a failing device leaves its logs behind
	cmd := utils.NewFFmpegCaptureCmd(f.Format, f.Device)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &DeviceError{Device: f.Device, Cmd: cmd, Err: fmt.Errorf("failed to create stdout pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &DeviceError{Device: f.Device, Cmd: cmd, Err: fmt.Errorf("failed to start ffmpeg: %w", err)}
	}
	logging.DebugLog("FFmpeg capture started (pid %d) on %s", cmd.Process.Pid, f.Device)

	s := &ffmpegStream{
		device: f.Device,
		cmd:    cmd,
		stdout: stdout,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.pump()

	// 2. Wait for the first frame, an early exit, or the caller giving up
	select {
	case <-s.ready:
		return s, nil
	case <-s.done:
		s.Close()
		err := s.scanErr
		if err == nil {
			err = errors.New("ffmpeg exited before the first frame")
		}
		return nil, &DeviceError{Device: f.Device, Cmd: cmd, Err: err}
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

// pump keeps only the newest frame so Frame never returns stale video.
func (s *ffmpegStream) pump() {
	defer close(s.done)

	scanner := bufio.NewScanner(s.stdout)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	for scanner.Scan() {
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())

		s.mu.Lock()
		s.latest = frame
		s.mu.Unlock()

		s.readyOnce.Do(func() { close(s.ready) })
	}
	s.scanErr = scanner.Err()
}

func (s *ffmpegStream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	closed, data := s.closed, s.latest
	s.mu.Unlock()

	if closed {
		return nil, ErrReleased
	}
	if data == nil {
		return nil, ErrNotStarted
	}
	return DecodeFrame(data)
}

// Close kills ffmpeg, drains the pipe and reaps the process.
func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		var err error
		if s.cmd.Process != nil {
			if kerr := s.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
				err = multierr.Append(err, kerr)
			}
		}
		// The pump sees EOF once the process is gone. Wait must not run before reads finish.
		<-s.done
		if werr := s.cmd.Wait(); werr != nil {
			var exitErr *exec.ExitError
			if !errors.As(werr, &exitErr) {
				err = multierr.Append(err, werr)
			}
		}
		s.closeErr = err
		logging.DebugLog("FFmpeg capture stopped on %s", s.device)
	})
	return s.closeErr
}
