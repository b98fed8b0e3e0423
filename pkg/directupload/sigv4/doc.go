// Package sigv4 signs browser POST policy documents with AWS Signature Version 4.
//
// The package is pure: no I/O, no shared state, no clock. All time-dependent
// values (the UTC date stamp) are passed in already formatted.
//
// # Signing a policy
//
//	policyB64, signature := sigv4.Sign(secretAccessKey, "20150830", "us-east-1", sigv4.ServiceS3, policyJSON)
//
// The browser submits policyB64 as the "policy" form field and signature as
// "x-amz-signature". The storage service recomputes the same HMAC chain:
//
//	err := sigv4.Verify(secretAccessKey, "20150830", "us-east-1", sigv4.ServiceS3, policyB64, signature)
//
// # Startup
//
// Call SelfTest before accepting traffic. It derives the published AWS
// reference signing key and fails if the HMAC primitive is unusable.
package sigv4
