package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tendant/simple-upload/pkg/simpleupload"
)

// Config options for the local backend
type Config struct {
	BaseDir    string // Directory uploaded files are written to
	BaseURL    string // Externally reachable base URL of this server, e.g. http://localhost:8080
	SecretKey  string // HMAC key used to sign policies
	Bucket     string // Bucket name recorded in policies (default: "local")
	UploadPath string // Path the multipart POST is sent to (default: /local-upload)
	FilesPath  string // Path prefix uploaded files are served from (default: /local-files)
}

// Backend is a filesystem stand-in for R2 used in development. It signs
// policies in the same shape as an S3 POST policy and accepts the matching
// multipart upload through Handler.
type Backend struct {
	config Config
	signer signer
	now    func() time.Time
}

var _ simpleupload.PolicySigner = (*Backend)(nil)

// New creates a local backend, creating BaseDir if needed
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if config.Bucket == "" {
		config.Bucket = "local"
	}
	if config.UploadPath == "" {
		config.UploadPath = "/local-upload"
	}
	if config.FilesPath == "" {
		config.FilesPath = "/local-files"
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		config: config,
		signer: signer{secretKey: []byte(config.SecretKey)},
		now:    time.Now,
	}, nil
}

// Bucket returns the configured bucket name
func (b *Backend) Bucket() string {
	return b.config.Bucket
}

// ObjectURL returns the URL key is served from by Handler
func (b *Backend) ObjectURL(key string) string {
	return b.config.BaseURL + b.config.FilesPath + "/" + key
}

// SignPolicy returns an HMAC-signed policy for req
func (b *Backend) SignPolicy(ctx context.Context, req simpleupload.PolicyRequest) (*simpleupload.SignedPolicy, error) {
	if len(b.signer.secretKey) == 0 {
		return nil, ErrNoSecretKey
	}
	if _, err := b.objectPath(req.Key); err != nil {
		return nil, err
	}

	bucket := req.Bucket
	if bucket == "" {
		bucket = b.config.Bucket
	}

	encoded, err := Policy{
		Expiration:        b.now().Add(req.Expires),
		Bucket:            bucket,
		Key:               req.Key,
		MinSize:           req.MinSize,
		MaxSize:           req.MaxSize,
		ContentTypePrefix: req.ContentTypePrefix,
	}.encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy: %w", err)
	}

	return &simpleupload.SignedPolicy{
		URL: b.config.BaseURL + b.config.UploadPath,
		Fields: map[string]string{
			FieldKey:         req.Key,
			FieldContentType: req.ContentType,
			FieldPolicy:      encoded,
			FieldSignature:   b.signer.sign(encoded),
		},
	}, nil
}

// objectPath maps key to a path under BaseDir, rejecting traversal
func (b *Backend) objectPath(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	base, err := filepath.Abs(b.config.BaseDir)
	if err != nil {
		return "", err
	}
	p := filepath.Join(base, filepath.FromSlash(key))
	if p == base || !strings.HasPrefix(p, base+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return p, nil
}

// store writes at most maxSize bytes from r to key. The partial file is
// removed when the limit is exceeded.
func (b *Backend) store(key string, r io.Reader, minSize, maxSize int64) (int64, error) {
	p, err := b.objectPath(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(p)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, maxSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > maxSize {
		err = ErrTooLarge
	}
	if err == nil && n < minSize {
		err = fmt.Errorf("%w: file smaller than %d bytes", ErrConditionFailed, minSize)
	}
	if err != nil {
		os.Remove(p)
		return 0, err
	}
	return n, nil
}

// Open opens the stored object under key
func (b *Backend) Open(key string) (*os.File, error) {
	p, err := b.objectPath(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}
