package simpleupload

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Issuer mints upload policies. It holds no per-request state and is safe
// for concurrent use.
type Issuer struct {
	signer        PolicySigner
	publicBaseURL string
	now           func() time.Time
	observer      IssueObserver
}

// IssueObserver is notified after every Issue call. The metrics package
// provides a Prometheus-backed implementation.
type IssueObserver interface {
	ObserveIssue(duration time.Duration, err error)
}

// IssuerOption configures an Issuer
type IssuerOption func(*Issuer)

// WithPublicBaseURL sets the base under which uploaded objects are served.
// When empty the signer's bucket endpoint URL is used instead.
func WithPublicBaseURL(base string) IssuerOption {
	return func(i *Issuer) {
		i.publicBaseURL = base
	}
}

// WithClock overrides the time source used to build object keys
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// WithObserver registers an IssueObserver
func WithObserver(o IssueObserver) IssuerOption {
	return func(i *Issuer) {
		i.observer = o
	}
}

// NewIssuer creates an Issuer backed by signer
func NewIssuer(signer PolicySigner, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		signer: signer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue returns a policy authorizing one upload of fileName. The object key
// is "<unix-millis>-<fileName>"; fileName is not sanitized.
func (i *Issuer) Issue(ctx context.Context, fileName, contentType string) (*UploadPolicy, error) {
	key := ObjectKey(i.now(), fileName)

	start := time.Now()

	signed, err := i.signer.SignPolicy(ctx, PolicyRequest{
		Bucket:            i.signer.Bucket(),
		Key:               key,
		ContentType:       contentType,
		MinSize:           0,
		MaxSize:           MaxUploadSize,
		ContentTypePrefix: "",
		Expires:           PolicyTTL,
	})
	if i.observer != nil {
		i.observer.ObserveIssue(time.Since(start), err)
	}
	if err != nil {
		return nil, &StorageSigningError{Key: key, Err: err}
	}

	slog.Debug("Upload policy issued", "key", key, "content_type", contentType)

	return &UploadPolicy{
		UploadURL: signed.URL,
		Fields:    signed.Fields,
		PublicURL: i.PublicURL(key),
		Key:       key,
	}, nil
}

// PublicURL returns the URL an object stored under key will be served from
func (i *Issuer) PublicURL(key string) string {
	if i.publicBaseURL != "" {
		return i.publicBaseURL + "/" + key
	}
	return i.signer.ObjectURL(key)
}

// ObjectKey builds the storage key for fileName uploaded at t
func ObjectKey(t time.Time, fileName string) string {
	return fmt.Sprintf("%d-%s", t.UnixMilli(), fileName)
}

// SplitObjectKey is the inverse of ObjectKey. ok is false when key has no
// numeric millisecond prefix.
func SplitObjectKey(key string) (millis int64, fileName string, ok bool) {
	prefix, rest, found := strings.Cut(key, "-")
	if !found || prefix == "" {
		return 0, "", false
	}
	millis, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || millis < 0 {
		return 0, "", false
	}
	return millis, rest, true
}
