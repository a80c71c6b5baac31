// Package authtest runs an in-process stand-in for the Auth Service.
//
// By default it behaves like the real service: users register with up to
// five face samples, then log in with their password or any decodable face
// image. Tests can queue scripted replies per endpoint to force failures,
// odd status codes, garbage bodies or dropped connections.
package authtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SamplesRequired is how many faces the emulated service stores per user.
const SamplesRequired = 5

// Reply is one scripted answer.
type Reply struct {
	// Status defaults to 200.
	Status int
	// Body is encoded as JSON unless Raw is set.
	Body any
	Raw  string
	// Drop closes the connection without writing anything.
	Drop bool
}

// JSON builds the usual {success, msg, completed} reply.
func JSON(success bool, msg string, completed bool) Reply {
	body := map[string]any{"success": success, "msg": msg}
	if completed {
		body["completed"] = true
	}
	return Reply{Body: body}
}

// Request is what the server saw for one call.
type Request struct {
	Path             string
	ContentType      string
	Email            string
	Password         string
	Image            []byte
	ImageFilename    string
	ImageContentType string
}

type user struct {
	password string
	samples  int
}

// Server is an httptest.Server wired to a chi router.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	scripted map[string][]Reply
	requests []Request
	users    map[string]*user
	latency  time.Duration
}

// New starts the fake service. Callers must Close it.
func New() *Server {
	s := &Server{
		scripted: make(map[string][]Reply),
		users:    make(map[string]*user),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.slowReplies)
	r.Post("/login/password", s.handlePasswordLogin)
	r.Post("/login/face", s.handleFaceLogin)
	r.Post("/register", s.handleRegister)

	s.Server = httptest.NewServer(r)
	return s
}

// Enqueue scripts the next replies for path, consumed in order.
func (s *Server) Enqueue(path string, replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripted[path] = append(s.scripted[path], replies...)
}

// SetLatency holds every reply back by d after the request has been handled.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// slowReplies sleeps after the handler so state changes land before the client sees the reply.
func (s *Server) slowReplies(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		s.mu.Lock()
		d := s.latency
		s.mu.Unlock()
		if d > 0 {
			time.Sleep(d)
		}
	})
}

// AddUser seeds a fully registered user.
func (s *Server) AddUser(email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(email)] = &user{password: password, samples: SamplesRequired}
}

// Samples reports how many faces are stored for email.
func (s *Server) Samples(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[strings.ToLower(email)]; ok {
		return u.samples
	}
	return 0
}

// Requests returns the calls seen on path, or on every path when path is empty.
func (s *Server) Requests(path string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if path == "" || r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Count is len(Requests(path)).
func (s *Server) Count(path string) int {
	return len(s.Requests(path))
}

func (s *Server) record(req Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
}

// scriptedReply pops the next queued reply for path.
func (s *Server) scriptedReply(path string) (Reply, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.scripted[path]
	if len(q) == 0 {
		return Reply{}, false
	}
	s.scripted[path] = q[1:]
	return q[0], true
}

func (s *Server) handlePasswordLogin(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var cred struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	decodeErr := json.Unmarshal(raw, &cred)
	s.record(Request{
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
		Email:       cred.Email,
		Password:    cred.Password,
	})

	if reply, ok := s.scriptedReply(r.URL.Path); ok {
		write(w, reply)
		return
	}

	if decodeErr != nil {
		write(w, JSON(false, "Internal server error", false))
		return
	}
	if cred.Email == "" || cred.Password == "" {
		write(w, JSON(false, "Missing credentials", false))
		return
	}

	s.mu.Lock()
	u, ok := s.users[strings.ToLower(cred.Email)]
	s.mu.Unlock()
	switch {
	case !ok:
		write(w, JSON(false, "User not found", false))
	case u.password != cred.Password:
		write(w, JSON(false, "Invalid password", false))
	default:
		write(w, JSON(true, "Login successful", false))
	}
}

func (s *Server) handleFaceLogin(w http.ResponseWriter, r *http.Request) {
	req := parseMultipart(r)
	s.record(req)

	if reply, ok := s.scriptedReply(r.URL.Path); ok {
		write(w, reply)
		return
	}

	if req.Email == "" || req.Image == nil {
		write(w, JSON(false, "Missing data", false))
		return
	}

	s.mu.Lock()
	u, ok := s.users[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if !ok || u.samples == 0 {
		write(w, JSON(false, "User not registered", false))
		return
	}
	if !isImage(req.Image) {
		write(w, JSON(false, "No face detected", false))
		return
	}
	write(w, JSON(true, "Login successful", false))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	req := parseMultipart(r)
	s.record(req)

	if reply, ok := s.scriptedReply(r.URL.Path); ok {
		write(w, reply)
		return
	}

	email := strings.ToLower(req.Email)
	if email == "" || req.Password == "" || req.Image == nil {
		write(w, JSON(false, "Missing data", false))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[email]
	if ok && u.samples >= SamplesRequired {
		write(w, JSON(false, "Already fully registered", false))
		return
	}
	if !ok {
		u = &user{password: req.Password}
		s.users[email] = u
	}
	if !isImage(req.Image) {
		write(w, JSON(false, "No face detected", false))
		return
	}

	u.samples++
	if u.samples == SamplesRequired {
		write(w, JSON(true, "Registration completed", true))
		return
	}
	write(w, JSON(true, faceSavedMsg(u.samples), false))
}

func faceSavedMsg(n int) string {
	return fmt.Sprintf("Face saved (%d/%d)", n, SamplesRequired)
}

func parseMultipart(r *http.Request) Request {
	req := Request{Path: r.URL.Path, ContentType: r.Header.Get("Content-Type")}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return req
	}
	req.Email = r.FormValue("email")
	req.Password = r.FormValue("password")

	f, hdr, err := r.FormFile("image")
	if err != nil {
		return req
	}
	defer f.Close()
	req.Image, _ = io.ReadAll(f)
	req.ImageFilename = hdr.Filename
	req.ImageContentType = hdr.Header.Get("Content-Type")
	return req
}

func isImage(data []byte) bool {
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	return err == nil
}

func write(w http.ResponseWriter, reply Reply) {
	if reply.Drop {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return
			}
		}
		panic(http.ErrAbortHandler)
	}

	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	if reply.Raw != "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		io.WriteString(w, reply.Raw)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(reply.Body)
}
