package simpleupload

import "time"

const (
	// MaxUploadSize is the largest body, in bytes, an issued policy accepts.
	MaxUploadSize int64 = 10 * 1024 * 1024

	// PolicyTTL is how long an issued policy stays valid.
	PolicyTTL = 600 * time.Second
)

// UploadRequest is the body accepted by the upload-url endpoint.
type UploadRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

// Validate reports ErrInvalidRequest when either field is empty.
func (r UploadRequest) Validate() error {
	if r.FileName == "" || r.ContentType == "" {
		return ErrInvalidRequest
	}
	return nil
}

// UploadPolicy is what a caller needs to upload one file directly to storage.
type UploadPolicy struct {
	UploadURL string            `json:"uploadUrl"`
	Fields    map[string]string `json:"fields"`
	PublicURL string            `json:"publicUrl"`
	Key       string            `json:"key"`
}

// PolicyRequest describes the constraints a PolicySigner must encode.
type PolicyRequest struct {
	Bucket      string
	Key         string
	ContentType string

	// MinSize and MaxSize bound the upload body (inclusive).
	MinSize int64
	MaxSize int64

	// ContentTypePrefix is the starts-with condition on the Content-Type
	// form field. An empty prefix accepts any content type.
	ContentTypePrefix string

	Expires time.Duration
}

// SignedPolicy is the URL and form fields returned by a PolicySigner.
// Fields must be forwarded verbatim ahead of the file part.
type SignedPolicy struct {
	URL    string
	Fields map[string]string
}

// User is the identity asserted by a SessionVerifier. Handlers only check
// for its presence.
type User struct {
	ID    string
	Email string
}
