package types

import "time"

// Credential is the JSON body of a password login
type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// FaceSample is one captured frame plus the form fields sent alongside it.
// Image travels as its own multipart part.
type FaceSample struct {
	Email    string `schema:"email"`
	Password string `schema:"password,omitempty"`
	Image    []byte `schema:"-"`
}

// ServerResponse matches the JSON structure every Auth Service endpoint replies with
type ServerResponse struct {
	Success   bool   `json:"success"`
	Msg       string `json:"msg"`
	Completed bool   `json:"completed,omitempty"`
}

// Method names how an identity was proven
type Method string

const (
	MethodPassword Method = "password"
	MethodFace     Method = "face"
)

// SessionMarker is the active identity written after a successful login
type SessionMarker struct {
	Email      string
	Method     Method
	LoggedInAt time.Time
}
