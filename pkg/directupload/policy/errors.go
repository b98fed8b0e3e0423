package policy

import "errors"

var (
	// ErrInvalidSizeLimit is returned when the upload size ceiling is not positive
	ErrInvalidSizeLimit = errors.New("policy: size limit must be greater than zero")

	// ErrExpirationNotInFuture is returned when the policy would already be expired
	ErrExpirationNotInFuture = errors.New("policy: expiration must be in the future")

	// ErrEncode is returned when the document cannot be serialized
	ErrEncode = errors.New("policy: encode failed")

	// ErrDecode is returned when a submitted policy cannot be parsed
	ErrDecode = errors.New("policy: decode failed")
)
