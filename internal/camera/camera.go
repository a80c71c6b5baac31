// Package camera provides the live frame sources used by the login and
// registration flows, plus the scoped handle that guarantees a stream is
// released exactly once.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/andresmejia3/facegate/internal/logging"
	"github.com/sethvargo/go-retry"
)

// JPEGQuality is the encoder quality used for every uploaded frame.
const JPEGQuality = 95

var (
	ErrNotStarted = errors.New("camera: stream not started")
	ErrReleased   = errors.New("camera: stream released")
	ErrNoFrames   = errors.New("camera: no frames available")
)

// Provider attaches a live video stream. Open returns only once the first
// frame can be read.
type Provider interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an attached frame source.
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// AcquireOptions bounds how hard Acquire tries to attach a stream.
type AcquireOptions struct {
	Attempts     int
	Backoff      time.Duration
	ReadyTimeout time.Duration
}

// Handle owns an attached stream until Release.
type Handle struct {
	stream Stream

	mu         sync.Mutex
	released   bool
	releaseErr error
}

// Acquire opens the provider, retrying transient failures with a constant backoff.
func Acquire(ctx context.Context, p Provider, opts AcquireOptions) (*Handle, error) {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	b := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(backoff))

	start := time.Now()
	try := 0
	var stream Stream
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		try++
		openCtx := ctx
		if opts.ReadyTimeout > 0 {
			var cancel context.CancelFunc
			openCtx, cancel = context.WithTimeout(ctx, opts.ReadyTimeout)
			defer cancel()
		}

		s, err := p.Open(openCtx)
		if err != nil {
			if permanent(err) || ctx.Err() != nil {
				return err
			}
			logging.WarnLog("Camera open attempt %d/%d failed: %v", try, attempts, err)
			return retry.RetryableError(err)
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.DebugLog("Camera stream attached after %d attempt(s) %v", try, time.Since(start))
	return &Handle{stream: stream}, nil
}

// permanent reports errors that no amount of waiting will fix.
func permanent(err error) bool {
	return errors.Is(err, exec.ErrNotFound) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, ErrNoFrames)
}

// Active reports whether the stream is still attached.
func (h *Handle) Active() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.released
}

// Capture grabs the current frame and encodes it as JPEG.
func (h *Handle) Capture(ctx context.Context) ([]byte, error) {
	if h == nil {
		return nil, ErrNotStarted
	}
	h.mu.Lock()
	released := h.released
	h.mu.Unlock()
	if released {
		return nil, ErrReleased
	}

	img, err := h.stream.Frame(ctx)
	if err != nil {
		return nil, fmt.Errorf("camera: read frame: %w", err)
	}
	return EncodeJPEG(img)
}

// Release closes the underlying stream. Later calls return the first result.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return h.releaseErr
	}
	h.released = true
	h.releaseErr = h.stream.Close()
	logging.DebugLog("Camera stream released")
	return h.releaseErr
}

// EncodeJPEG encodes img at JPEGQuality. Dimensions are preserved.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("camera: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeFrame decodes a JPEG or PNG frame.
func DecodeFrame(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("camera: decode frame: %w", err)
	}
	return img, nil
}
