// Package authapi talks to the remote Auth Service: password login, face
// login and per-sample face registration.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/andresmejia3/facegate/internal/logging"
	"github.com/andresmejia3/facegate/internal/types"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/gorilla/schema"
	"go.uber.org/zap"
)

const (
	PathLoginPassword = "/login/password"
	PathLoginFace     = "/login/face"
	PathRegister      = "/register"

	// imageField and imageFilename mirror what a browser sends for a Blob appended to FormData.
	imageField    = "image"
	imageFilename = "blob"

	maxResponseBytes = 1 << 20
)

// ErrTransport marks failures where no usable JSON reply came back.
var ErrTransport = errors.New("auth service unreachable or reply unreadable")

var encoder = schema.NewEncoder()

// Client is a thin HTTP client for the Auth Service endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each request. Zero means no deadline beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New constructs a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the origin requests are sent to.
func (c *Client) BaseURL() string { return c.baseURL }

// LoginPassword posts the credential as JSON.
func (c *Client) LoginPassword(ctx context.Context, cred types.Credential) (types.ServerResponse, error) {
	body, err := json.Marshal(cred)
	if err != nil {
		return types.ServerResponse{}, fmt.Errorf("authapi: encode credential: %w", err)
	}
	return c.post(ctx, PathLoginPassword, "application/json", body, cred.Email)
}

// LoginFace posts {email, image} as multipart form data.
func (c *Client) LoginFace(ctx context.Context, sample types.FaceSample) (types.ServerResponse, error) {
	sample.Password = ""
	return c.postSample(ctx, PathLoginFace, sample)
}

// Register posts {email, password, image} as multipart form data.
func (c *Client) Register(ctx context.Context, sample types.FaceSample) (types.ServerResponse, error) {
	return c.postSample(ctx, PathRegister, sample)
}

func (c *Client) postSample(ctx context.Context, path string, sample types.FaceSample) (types.ServerResponse, error) {
	body, contentType, err := encodeSample(sample)
	if err != nil {
		return types.ServerResponse{}, err
	}
	return c.post(ctx, path, contentType, body, sample.Email)
}

// encodeSample writes the text fields first and the JPEG last.
func encodeSample(sample types.FaceSample) ([]byte, string, error) {
	fields := map[string][]string{}
	if err := encoder.Encode(sample, fields); err != nil {
		return nil, "", fmt.Errorf("authapi: encode form fields: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	// email before password keeps the wire order of the web client
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range fields[k] {
			if err := mw.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("authapi: write field %s: %w", k, err)
			}
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, imageField, imageFilename))
	h.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("authapi: create image part: %w", err)
	}
	if _, err := part.Write(sample.Image); err != nil {
		return nil, "", fmt.Errorf("authapi: write image part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("authapi: close multipart body: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// post sends one request. Any JSON object in the body counts as the service's
// answer, whatever the status code.
func (c *Client) post(ctx context.Context, path, contentType string, body []byte, email string) (types.ServerResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	fields := []zap.Field{
		zap.String("path", path),
		zap.String("email", utils.HashEmail(email)),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return types.ServerResponse{}, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		logging.Warn("Auth service request failed", append(fields, zap.Error(err))...)
		return types.ServerResponse{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		logging.Warn("Auth service reply unreadable", append(fields, zap.Int("status", resp.StatusCode), zap.Error(err))...)
		return types.ServerResponse{}, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	var out types.ServerResponse
	if err := decodeReply(raw, &out); err != nil {
		logging.Warn("Auth service reply is not JSON", append(fields, zap.Int("status", resp.StatusCode), zap.Error(err))...)
		return types.ServerResponse{}, fmt.Errorf("%w: status %d: %v", ErrTransport, resp.StatusCode, err)
	}

	logging.Debug("Auth service replied", append(fields,
		zap.Int("status", resp.StatusCode),
		zap.Bool("success", out.Success),
		zap.Bool("completed", out.Completed),
		zap.Duration("took", time.Since(start)),
	)...)
	return out, nil
}

// decodeReply accepts only a JSON object carrying both success and msg;
// arrays, scalars, HTML error pages and bare objects are rejected.
func decodeReply(raw []byte, out *types.ServerResponse) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.New("reply is not a JSON object")
	}
	var fields struct {
		Success *bool   `json:"success"`
		Msg     *string `json:"msg"`
	}
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return err
	}
	if fields.Success == nil || fields.Msg == nil {
		return errors.New("reply lacks success or msg")
	}
	return json.Unmarshal(trimmed, out)
}
