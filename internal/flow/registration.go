package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/andresmejia3/facegate/internal/camera"
	"github.com/andresmejia3/facegate/internal/logging"
	"github.com/andresmejia3/facegate/internal/types"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registration starts face-registration sessions.
type Registration struct {
	API     AuthAPI
	Camera  camera.Provider
	Acquire camera.AcquireOptions
}

// Session is one registration attempt. It owns the camera from Begin until
// the server reports completion or Close is called.
type Session struct {
	ID string

	api      AuthAPI
	email    string
	password string
	handle   *camera.Handle

	mu        sync.Mutex
	samples   int
	inflight  int
	completed bool
	closed    bool
	status    string
	label     string
}

// Begin validates the credentials and attaches the camera. No request is
// sent until the first Capture.
func (r *Registration) Begin(ctx context.Context, email, password string) (*Session, Outcome) {
	if err := validate.Struct(registrationInput{Email: email, Password: password}); err != nil {
		return nil, invalid(StatusCredentialsRequired, err)
	}

	id := uuid.NewString()
	log := logging.GetLogger().With(zap.String("session", id))

	h, err := camera.Acquire(ctx, r.Camera, r.Acquire)
	if err != nil {
		log.Warn("Registration could not start camera", zap.Error(err))
		return nil, cameraFailure(err)
	}

	s := &Session{
		ID:       id,
		api:      r.API,
		email:    strings.TrimSpace(email),
		password: password,
		handle:   h,
		status:   StatusCameraStarted,
		label:    captureLabel(0),
	}
	log.Info("Registration session started", zap.String("email", utils.HashEmail(s.email)))
	return s, Outcome{Kind: Success, Status: StatusCameraStarted}
}

// Capture grabs one frame and submits it as the next sample. Calls past the
// sample ceiling, after completion or after Close are no-ops.
func (s *Session) Capture(ctx context.Context) Outcome {
	log := logging.GetLogger().With(zap.String("session", s.ID))

	s.mu.Lock()
	if s.completed || s.closed || s.samples+s.inflight >= MaxSamples {
		status := s.status
		s.mu.Unlock()
		log.Debug("Sample capture skipped")
		return Outcome{Kind: Skipped, Status: status}
	}
	s.inflight++
	attempt := s.samples + s.inflight
	s.mu.Unlock()

	out := s.submit(ctx, attempt)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--

	if out.OK() {
		s.samples++
		if out.Completed {
			s.completed = true
			if err := s.handle.Release(); err != nil {
				log.Warn("Camera release failed", zap.Error(err))
			}
			log.Info("Registration completed", zap.Int("samples", s.samples))
		} else {
			s.label = captureLabel(s.samples)
			log.Info("Sample accepted", zap.Int("samples", s.samples))
		}
	}
	s.status = out.Status
	return out
}

func (s *Session) submit(ctx context.Context, attempt int) Outcome {
	img, err := s.handle.Capture(ctx)
	if err != nil {
		if errors.Is(err, camera.ErrReleased) {
			return Outcome{Kind: Skipped, Status: s.Status()}
		}
		return cameraFailure(err)
	}

	resp, err := s.api.Register(ctx, types.FaceSample{Email: s.email, Password: s.password, Image: img})
	if err != nil {
		logging.Warn("Sample submission failed to reach service",
			zap.String("session", s.ID), zap.Int("attempt", attempt), zap.Error(err))
		return transportFailure(err)
	}
	return fromResponse(resp)
}

// Close releases the camera. It is safe to call more than once and after
// completion.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.handle.Release()
}

// SampleCount is the number of samples the server accepted.
func (s *Session) SampleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

// CaptureEnabled reports whether the capture control should be enabled:
// the camera is attached and the server has not reported completion.
func (s *Session) CaptureEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.completed && !s.closed && s.handle.Active()
}

// StartEnabled is false for the lifetime of a session.
func (s *Session) StartEnabled() bool { return false }

// CaptureLabel is the text of the capture control. It names the next
// attempt and is left alone once the server reports completion.
func (s *Session) CaptureLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label
}

func captureLabel(accepted int) string {
	return fmt.Sprintf("Take Sample (%d / %d)", accepted+1, MaxSamples)
}

// Completed reports whether the server signalled the last sample.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Status is the latest status line.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
