package flow

import (
	"context"
	"strings"
	"time"

	"github.com/andresmejia3/facegate/internal/camera"
	"github.com/andresmejia3/facegate/internal/logging"
	"github.com/andresmejia3/facegate/internal/types"
	"github.com/andresmejia3/facegate/internal/utils"
	"go.uber.org/zap"
)

// Login runs password and face logins against the Auth Service.
type Login struct {
	API      AuthAPI
	Camera   camera.Provider
	Acquire  camera.AcquireOptions
	Sessions SessionWriter

	// Now stamps session markers. Defaults to time.Now.
	Now func() time.Time
}

// Password submits the credential as-is; the server does all validation.
func (l *Login) Password(ctx context.Context, email, password string) Outcome {
	email = strings.TrimSpace(email)
	resp, err := l.API.LoginPassword(ctx, types.Credential{Email: email, Password: password})
	if err != nil {
		logging.Warn("Password login failed to reach service", zap.String("email", utils.HashEmail(email)), zap.Error(err))
		return transportFailure(err)
	}
	return l.finish(ctx, email, types.MethodPassword, resp)
}

// Face captures one frame and submits it with the email. The camera is
// released before Face returns, whatever the result.
func (l *Login) Face(ctx context.Context, email string) Outcome {
	email = strings.TrimSpace(email)
	if err := validate.Struct(faceInput{Email: email}); err != nil {
		return invalid(StatusEmailRequired, err)
	}

	h, err := camera.Acquire(ctx, l.Camera, l.Acquire)
	if err != nil {
		logging.Warn("Face login could not start camera", zap.Error(err))
		return cameraFailure(err)
	}
	defer func() {
		if err := h.Release(); err != nil {
			logging.Warn("Camera release failed", zap.Error(err))
		}
	}()

	img, err := h.Capture(ctx)
	if err != nil {
		return cameraFailure(err)
	}

	resp, err := l.API.LoginFace(ctx, types.FaceSample{Email: email, Image: img})
	if err != nil {
		logging.Warn("Face login failed to reach service", zap.String("email", utils.HashEmail(email)), zap.Error(err))
		return transportFailure(err)
	}
	return l.finish(ctx, email, types.MethodFace, resp)
}

func (l *Login) finish(ctx context.Context, email string, method types.Method, resp types.ServerResponse) Outcome {
	out := fromResponse(resp)
	out.Completed = false
	if !out.OK() {
		logging.Info("Login rejected", zap.String("method", string(method)), zap.String("email", utils.HashEmail(email)), zap.String("msg", resp.Msg))
		return out
	}

	out.Navigate = true
	logging.Info("Login succeeded", zap.String("method", string(method)), zap.String("email", utils.HashEmail(email)))

	if l.Sessions != nil {
		marker := types.SessionMarker{Email: email, Method: method, LoggedInAt: l.now()}
		if err := l.Sessions.SaveSession(ctx, marker); err != nil {
			logging.Error("Could not store session marker", zap.Error(err))
			out.Err = err
		}
	}
	return out
}

func (l *Login) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
