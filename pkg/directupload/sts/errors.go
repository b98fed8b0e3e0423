package sts

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

var (
	// ErrEmptyCredentials is returned when STS answers without a credential set
	ErrEmptyCredentials = errors.New("sts: response carried no credentials")

	// ErrEmptyRole is returned when IAM answers without a role ARN
	ErrEmptyRole = errors.New("sts: response carried no role identifier")
)

// Error codes that mean the request will never succeed as issued
var deniedCodes = map[string]bool{
	"AccessDenied":            true,
	"AccessDeniedException":   true,
	"MalformedPolicyDocument": true,
	"PackedPolicyTooLarge":    true,
	"RegionDisabledException": true,
	"ExpiredToken":            true,
	"ExpiredTokenException":   true,
	"InvalidClientTokenId":    true,
	"InvalidIdentityToken":    true,
	"NoSuchEntity":            true,
	"ValidationError":         true,
}

// redactedError keeps the provider's error chain for errors.Is/As but prints
// only the error code. Provider messages echo role ARNs and account IDs.
type redactedError struct {
	op    string
	code  string
	cause error
}

func (e *redactedError) Error() string {
	if e.code == "" {
		return fmt.Sprintf("sts: %s failed", e.op)
	}
	return fmt.Sprintf("sts: %s failed: %s", e.op, e.code)
}

func (e *redactedError) Unwrap() error {
	return e.cause
}

func redact(op string, err error) error {
	var apiErr smithy.APIError
	code := ""
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.ErrorCode()
	case errors.Is(err, context.DeadlineExceeded):
		code = "timeout"
	case errors.Is(err, context.Canceled):
		code = "canceled"
	}
	return &redactedError{op: op, code: code, cause: err}
}

// isRetryable classifies an AssumeRole failure. Timeouts, transport errors,
// throttling and server faults are retryable; explicit rejections are not.
func isRetryable(parent context.Context, err error) bool {
	if errors.Is(parent.Err(), context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if deniedCodes[apiErr.ErrorCode()] {
			return false
		}
		if retry.IsErrorRetryables(retry.DefaultRetryables).IsErrorRetryable(err) == aws.TrueTernary {
			return true
		}
		return apiErr.ErrorFault() == smithy.FaultServer
	}

	var sendErr *smithyhttp.RequestSendError
	if errors.As(err, &sendErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return retry.IsErrorRetryables(retry.DefaultRetryables).IsErrorRetryable(err) == aws.TrueTernary
}
