package simpleupload

import (
	"context"
	"net/http"
)

// PolicySigner produces presigned POST policies for a storage backend.
type PolicySigner interface {
	// SignPolicy returns the upload URL and form fields for req.
	SignPolicy(ctx context.Context, req PolicyRequest) (*SignedPolicy, error)

	// Bucket returns the bucket policies are issued for.
	Bucket() string

	// ObjectURL returns the storage-hosted URL of key, used when no public
	// base URL is configured.
	ObjectURL(key string) string
}

// SessionVerifier resolves the caller of a request. A nil user with a nil
// error means the request carries no valid session.
type SessionVerifier interface {
	CurrentUser(r *http.Request) (*User, error)
}

// PolicyIssuer is implemented by Issuer; handlers depend on this so tests can
// swap it out.
type PolicyIssuer interface {
	Issue(ctx context.Context, fileName, contentType string) (*UploadPolicy, error)
}
