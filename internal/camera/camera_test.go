package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// stubStream returns a solid frame and counts Close calls.
type stubStream struct {
	closes atomic.Int32
	w, h   int
}

func (s *stubStream) Frame(ctx context.Context) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, s.w, s.h))
	for x := 0; x < s.w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	return img, nil
}

func (s *stubStream) Close() error {
	s.closes.Add(1)
	return nil
}

// flakyProvider fails its first n opens with err.
type flakyProvider struct {
	failures int
	err      error
	opens    int
	stream   *stubStream
}

func (p *flakyProvider) Open(ctx context.Context) (Stream, error) {
	p.opens++
	if p.opens <= p.failures {
		return nil, p.err
	}
	return p.stream, nil
}

func TestAcquireRetriesTransientFailures(t *testing.T) {
	p := &flakyProvider{failures: 2, err: errors.New("device busy"), stream: &stubStream{w: 4, h: 4}}

	h, err := Acquire(context.Background(), p, AcquireOptions{Attempts: 3, Backoff: time.Millisecond})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer h.Release()

	if p.opens != 3 {
		t.Errorf("expected 3 open attempts, got %d", p.opens)
	}
	if !h.Active() {
		t.Error("handle should be active after acquire")
	}
}

func TestAcquireGivesUpAfterAttempts(t *testing.T) {
	busy := errors.New("device busy")
	p := &flakyProvider{failures: 10, err: busy, stream: &stubStream{}}

	_, err := Acquire(context.Background(), p, AcquireOptions{Attempts: 2, Backoff: time.Millisecond})
	if !errors.Is(err, busy) {
		t.Fatalf("expected underlying error, got %v", err)
	}
	if p.opens != 2 {
		t.Errorf("expected 2 open attempts, got %d", p.opens)
	}
}

func TestAcquireDoesNotRetryPermanentFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "ffmpeg missing", err: &exec.Error{Name: "ffmpeg", Err: exec.ErrNotFound}},
		{name: "frame file missing", err: os.ErrNotExist},
		{name: "no frames", err: ErrNoFrames},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &flakyProvider{failures: 5, err: tt.err, stream: &stubStream{}}
			_, err := Acquire(context.Background(), p, AcquireOptions{Attempts: 5, Backoff: time.Millisecond})
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			if p.opens != 1 {
				t.Errorf("permanent failure retried %d times", p.opens)
			}
		})
	}
}

func TestReleaseClosesExactlyOnce(t *testing.T) {
	s := &stubStream{w: 2, h: 2}
	h, err := Acquire(context.Background(), &flakyProvider{stream: s}, AcquireOptions{})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := h.Release(); err != nil {
			t.Fatalf("Release() #%d error = %v", i, err)
		}
	}
	if got := s.closes.Load(); got != 1 {
		t.Errorf("stream closed %d times, want 1", got)
	}
	if h.Active() {
		t.Error("handle still active after release")
	}
	if _, err := h.Capture(context.Background()); !errors.Is(err, ErrReleased) {
		t.Errorf("Capture after release: expected ErrReleased, got %v", err)
	}
}

func TestNilHandle(t *testing.T) {
	var h *Handle
	if h.Active() {
		t.Error("nil handle reported active")
	}
	if _, err := h.Capture(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
	if err := h.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestCaptureEncodesJPEGAtFrameSize(t *testing.T) {
	h, err := Acquire(context.Background(), &flakyProvider{stream: &stubStream{w: 64, h: 48}}, AcquireOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()

	data, err := h.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("captured bytes are not an image: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("format = %s, want jpeg", format)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Errorf("size = %dx%d, want 64x48", cfg.Width, cfg.Height)
	}
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFilesProviderCycles(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 10, 10)
	b := writePNG(t, dir, "b.png", 20, 10)

	s, err := Files{Paths: []string{a, b}}.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	wantWidths := []int{10, 20, 10}
	for i, want := range wantWidths {
		img, err := s.Frame(context.Background())
		if err != nil {
			t.Fatalf("Frame() #%d error = %v", i, err)
		}
		if got := img.Bounds().Dx(); got != want {
			t.Errorf("frame %d width = %d, want %d", i, got, want)
		}
	}

	s.Close()
	if _, err := s.Frame(context.Background()); !errors.Is(err, ErrReleased) {
		t.Errorf("expected ErrReleased after close, got %v", err)
	}
}

func TestFilesProviderRejectsBadSources(t *testing.T) {
	dir := t.TempDir()

	if _, err := (Files{}).Open(context.Background()); !errors.Is(err, ErrNoFrames) {
		t.Errorf("empty source: expected ErrNoFrames, got %v", err)
	}
	if _, err := (Files{Paths: []string{filepath.Join(dir, "missing.jpg")}}).Open(context.Background()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: expected os.ErrNotExist, got %v", err)
	}
	if _, err := (Files{Paths: []string{dir}}).Open(context.Background()); err == nil {
		t.Error("directory source should be rejected")
	}
}

func TestDecodeFrameAcceptsJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatal(err)
	}
	img, err := DecodeFrame(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("width = %d, want 8", img.Bounds().Dx())
	}

	if _, err := DecodeFrame([]byte("not an image")); err == nil {
		t.Error("expected decode error for garbage")
	}
}
