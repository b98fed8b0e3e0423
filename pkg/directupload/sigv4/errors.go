package sigv4

import "errors"

var (
	// ErrMissingSignature is returned by Verify when no signature is supplied
	ErrMissingSignature = errors.New("sigv4: missing signature")

	// ErrSignatureMismatch is returned by Verify when the signature does not match the policy
	ErrSignatureMismatch = errors.New("sigv4: signature mismatch")

	// ErrInvalidScope is returned when a credential scope is malformed
	ErrInvalidScope = errors.New("sigv4: invalid credential scope")

	// ErrSelfTestFailed is returned when the HMAC-SHA256 primitive does not reproduce the reference vector
	ErrSelfTestFailed = errors.New("sigv4: self-test failed")
)
