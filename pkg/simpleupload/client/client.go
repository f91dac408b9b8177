// Package client uploads files through a simple-upload server: it asks the
// server for a presigned POST policy, then posts the file straight to
// storage with that policy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/tendant/simple-upload/pkg/simpleupload"
)

// FileField is the multipart field carrying the file body. Storage requires
// it to be the last part of the form.
const FileField = "file"

const uploadURLPath = "/api/r2/upload-url"

// File is one file to upload
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Result is returned by a successful upload
type Result struct {
	URL string `json:"url"`
}

// StatusError reports a non-2xx response from either upload step
type StatusError struct {
	Step       string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Step, e.Status)
}

// Is lets callers match a rejected session with errors.Is(err, simpleupload.ErrUnauthorized)
func (e *StatusError) Is(target error) bool {
	return target == simpleupload.ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Client performs the two-step upload
type Client struct {
	httpClient *http.Client
	baseURL    string
	header     http.Header
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for both steps
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets the server the upload URL is requested from. The default
// is empty, meaning the upload-url path is used as is.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(base, "/")
	}
}

// WithHeader adds a header to the upload-url request only, typically the
// session cookie or an Authorization bearer token. It is never sent to storage.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Add(key, value)
	}
}

// New creates a Client
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		header:     make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload requests a policy for f and posts f to storage with it. The
// returned URL is where the object will be served from.
func (c *Client) Upload(ctx context.Context, f File) (*Result, error) {
	policy, err := c.requestPolicy(ctx, f)
	if err != nil {
		slog.Error("Upload error", "file_name", f.Name, "error", err)
		return nil, err
	}

	if err := c.postToStorage(ctx, policy, f); err != nil {
		slog.Error("Upload error", "file_name", f.Name, "key", policy.Key, "error", err)
		return nil, err
	}

	return &Result{URL: policy.PublicURL}, nil
}

func (c *Client) requestPolicy(ctx context.Context, f File) (*simpleupload.UploadPolicy, error) {
	body, err := json.Marshal(simpleupload.UploadRequest{
		FileName:    f.Name,
		ContentType: f.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadURLPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range c.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get upload URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Step: "failed to get upload URL", StatusCode: resp.StatusCode, Status: statusText(resp)}
	}

	var policy simpleupload.UploadPolicy
	if err := json.NewDecoder(resp.Body).Decode(&policy); err != nil {
		return nil, fmt.Errorf("failed to decode upload URL response: %w", err)
	}
	if policy.UploadURL == "" {
		return nil, errors.New("failed to get upload URL: response has no uploadUrl")
	}
	return &policy, nil
}

func (c *Client) postToStorage(ctx context.Context, policy *simpleupload.UploadPolicy, f File) error {
	// Storage rejects chunked form posts, so the form is buffered to send a
	// Content-Length. Bodies are bounded by MaxUploadSize.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := writeForm(mw, policy.Fields, f); err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, policy.UploadURL, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload to R2: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Step: "failed to upload to R2", StatusCode: resp.StatusCode, Status: statusText(resp)}
	}
	return nil
}

// writeForm writes the policy fields in key order, then the file part.
func writeForm(mw *multipart.Writer, fields map[string]string, f File) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile(FileField, f.Name)
	if err != nil {
		return err
	}
	if f.Body != nil {
		if _, err := io.Copy(part, f.Body); err != nil {
			return err
		}
	}
	return mw.Close()
}

// statusText returns the reason phrase, e.g. "Unauthorized"
func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}
