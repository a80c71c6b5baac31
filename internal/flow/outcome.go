// Package flow drives the login and registration interactions: it validates
// input, owns the camera for the duration of an attempt, talks to the Auth
// Service and turns every result into an Outcome the CLI can render.
package flow

import (
	"context"

	"github.com/andresmejia3/facegate/internal/types"
	"github.com/go-playground/validator/v10"
)

// MaxSamples is the client-side ceiling on registration submissions.
const MaxSamples = 5

// Status strings shown when the server's own message is not used.
const (
	StatusEmailRequired       = "Email required"
	StatusCredentialsRequired = "Email and password required"
	StatusCameraStarted       = "Camera started"
	StatusServerError         = "Server error"
	StatusCameraUnavailable   = "Camera unavailable"
)

// Kind classifies an Outcome.
type Kind int

const (
	Success Kind = iota
	Rejected
	Invalid
	TransportError
	CameraError
	Skipped
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Rejected:
		return "rejected"
	case Invalid:
		return "invalid"
	case TransportError:
		return "transport-error"
	case CameraError:
		return "camera-error"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is the typed result of one user action.
type Outcome struct {
	Kind   Kind
	Status string
	// Navigate is set when the caller should move on to the dashboard.
	Navigate bool
	// Completed is set when the server reported registration complete.
	Completed bool
	// Err holds the underlying failure, if any. For Success it may carry a
	// non-fatal problem such as a session marker that could not be stored.
	Err error
}

// OK reports whether the action succeeded.
func (o Outcome) OK() bool { return o.Kind == Success }

// AuthAPI is the subset of the Auth Service client the flows need.
type AuthAPI interface {
	LoginPassword(ctx context.Context, cred types.Credential) (types.ServerResponse, error)
	LoginFace(ctx context.Context, sample types.FaceSample) (types.ServerResponse, error)
	Register(ctx context.Context, sample types.FaceSample) (types.ServerResponse, error)
}

// SessionWriter persists the identity of a successful login.
type SessionWriter interface {
	SaveSession(ctx context.Context, marker types.SessionMarker) error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type faceInput struct {
	Email string `validate:"required"`
}

type registrationInput struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

func invalid(status string, err error) Outcome {
	return Outcome{Kind: Invalid, Status: status, Err: err}
}

func transportFailure(err error) Outcome {
	return Outcome{Kind: TransportError, Status: StatusServerError, Err: err}
}

func cameraFailure(err error) Outcome {
	return Outcome{Kind: CameraError, Status: StatusCameraUnavailable, Err: err}
}

// fromResponse maps an application reply. The server's msg is the status either way.
func fromResponse(resp types.ServerResponse) Outcome {
	if !resp.Success {
		return Outcome{Kind: Rejected, Status: resp.Msg}
	}
	return Outcome{Kind: Success, Status: resp.Msg, Completed: resp.Completed}
}
