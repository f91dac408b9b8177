package local

import "errors"

// Policy validation errors
var (
	// ErrNoSecretKey is returned when signing without a configured secret key
	ErrNoSecretKey = errors.New("local: no secret key configured")

	// ErrMissingPolicy is returned when the policy or signature form field is missing
	ErrMissingPolicy = errors.New("local: missing policy or signature field")

	// ErrInvalidSignature is returned when the policy signature does not match
	ErrInvalidSignature = errors.New("local: invalid policy signature")

	// ErrExpired is returned when the policy expiration has passed
	ErrExpired = errors.New("local: policy has expired")

	// ErrConditionFailed is returned when a form field violates a policy condition
	ErrConditionFailed = errors.New("local: policy condition not met")

	// ErrTooLarge is returned when the file exceeds the content-length-range
	ErrTooLarge = errors.New("local: file exceeds maximum allowed size")

	// ErrInvalidKey is returned when the object key escapes the base directory
	ErrInvalidKey = errors.New("local: invalid object key")
)

// IsPolicyError returns true if err is a policy validation failure caused by the client
func IsPolicyError(err error) bool {
	return errors.Is(err, ErrMissingPolicy) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrConditionFailed) ||
		errors.Is(err, ErrTooLarge) ||
		errors.Is(err, ErrInvalidKey)
}
