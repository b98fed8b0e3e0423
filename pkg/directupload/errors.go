package directupload

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrNotReady indicates the role has not been resolved yet
	ErrNotReady = errors.New("direct upload service not ready")

	// ErrMissingValue indicates a required setting is empty
	ErrMissingValue = errors.New("value is required")

	// ErrOutOfRange indicates a setting is outside its accepted range
	ErrOutOfRange = errors.New("value out of range")

	// ErrInvalidPrefix indicates an object key prefix that does not end with a separator
	ErrInvalidPrefix = errors.New("object key prefix must end with '/'")

	// ErrUnsafePrefix indicates a prefix with IAM wildcard, policy-variable or control characters
	ErrUnsafePrefix = errors.New("object key prefix contains wildcard or policy variable characters")

	// ErrMissingField indicates an assembled authorization would lack a required field
	ErrMissingField = errors.New("required authorization field is empty")

	// ErrAuthorizationNotFound indicates an audit record was not found
	ErrAuthorizationNotFound = errors.New("authorization not found")

	// ErrObjectNotFound indicates the requested object does not exist
	ErrObjectNotFound = errors.New("object not found")
)

// ConfigurationError reports an invalid or missing static setting
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// RoleResolutionError reports that the upload role could not be looked up at startup.
// The message never names the role.
type RoleResolutionError struct {
	Err error
}

func (e *RoleResolutionError) Error() string {
	return fmt.Sprintf("role resolution failed: %v", e.Err)
}

func (e *RoleResolutionError) Unwrap() error {
	return e.Err
}

// CredentialError reports a failed role assumption.
// Retryable is true for timeouts and transient transport failures; false for denials.
type CredentialError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *CredentialError) Error() string {
	kind := "denied"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("credential operation %s failed (%s): %v", e.Op, kind, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// SerializationError reports a policy document that could not be encoded
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("policy serialization failed: %v", e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// SigningError reports an unusable cryptographic primitive
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing unavailable: %v", e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is a credential failure that the caller may retry
func IsRetryable(err error) bool {
	var credErr *CredentialError
	return errors.As(err, &credErr) && credErr.Retryable
}

// IsDenied returns true if the error is a permanent credential rejection
func IsDenied(err error) bool {
	var credErr *CredentialError
	return errors.As(err, &credErr) && !credErr.Retryable
}

// IsConfigurationError returns true if the error stems from static configuration
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
