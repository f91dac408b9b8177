package simpleupload

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates the request carries no valid session
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidRequest indicates fileName or contentType is missing
	ErrInvalidRequest = errors.New("missing fileName or contentType")
)

// StorageSigningError wraps a failure of the storage signing capability
// (bad credentials, unreachable endpoint, unknown bucket).
type StorageSigningError struct {
	Key string
	Err error
}

func (e *StorageSigningError) Error() string {
	return fmt.Sprintf("failed to sign upload policy for %s: %v", e.Key, e.Err)
}

func (e *StorageSigningError) Unwrap() error {
	return e.Err
}

// IsStorageSigningError reports whether err is or wraps a StorageSigningError.
func IsStorageSigningError(err error) bool {
	var signErr *StorageSigningError
	return errors.As(err, &signErr)
}
