package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// Algorithm is the value of the x-amz-algorithm form field
	Algorithm = "AWS4-HMAC-SHA256"

	// ServiceS3 is the service segment of the credential scope for S3
	ServiceS3 = "s3"

	// Terminator is the last segment of every credential scope
	Terminator = "aws4_request"

	// DateFormat is the UTC date stamp used in the credential scope (YYYYMMDD)
	DateFormat = "20060102"

	// DateTimeFormat is the ISO-8601 basic timestamp used in x-amz-date
	DateTimeFormat = "20060102T150405Z"
)

// DeriveSigningKey runs the SigV4 key-derivation chain. Every intermediate
// MAC is fed raw into the next step as its key.
//
//	kDate    = HMAC("AWS4" + secret, dateStamp)
//	kRegion  = HMAC(kDate, region)
//	kService = HMAC(kRegion, service)
//	kSigning = HMAC(kService, "aws4_request")
func DeriveSigningKey(secretAccessKey, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretAccessKey), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, Terminator)
}

// Sign base64-encodes the policy document and signs the encoded string with
// the derived signing key. It has no side effects and may be called concurrently.
//
// Example:
//
//	policyB64, sig := sigv4.Sign(secret, "20150830", "us-east-1", "s3", policyJSON)
func Sign(secretAccessKey, dateStamp, region, service string, policyDocument []byte) (base64Policy, signatureHex string) {
	base64Policy = base64.StdEncoding.EncodeToString(policyDocument)
	signingKey := DeriveSigningKey(secretAccessKey, dateStamp, region, service)
	signatureHex = hex.EncodeToString(hmacSHA256(signingKey, base64Policy))
	return base64Policy, signatureHex
}

// Verify recomputes the signature of an already encoded policy and compares it
// in constant time. It mirrors the check the storage service runs on POST.
func Verify(secretAccessKey, dateStamp, region, service, base64Policy, signatureHex string) error {
	if signatureHex == "" {
		return ErrMissingSignature
	}
	signingKey := DeriveSigningKey(secretAccessKey, dateStamp, region, service)
	expected := hex.EncodeToString(hmacSHA256(signingKey, base64Policy))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signatureHex))) {
		return ErrSignatureMismatch
	}
	return nil
}

// Scope is a parsed credential scope: accessKeyId/date/region/service/aws4_request
type Scope struct {
	AccessKeyID string
	DateStamp   string
	Region      string
	Service     string
}

// String renders the scope in its wire form
func (s Scope) String() string {
	return s.AccessKeyID + "/" + s.DateStamp + "/" + s.Region + "/" + s.Service + "/" + Terminator
}

// ParseScope splits a credential scope string and validates its shape
func ParseScope(scope string) (Scope, error) {
	parts := strings.Split(scope, "/")
	if len(parts) != 5 {
		return Scope{}, fmt.Errorf("%w: expected 5 segments, got %d", ErrInvalidScope, len(parts))
	}
	if parts[4] != Terminator {
		return Scope{}, fmt.Errorf("%w: terminator must be %s", ErrInvalidScope, Terminator)
	}
	for i, p := range parts[:4] {
		if p == "" {
			return Scope{}, fmt.Errorf("%w: segment %d is empty", ErrInvalidScope, i)
		}
	}
	return Scope{
		AccessKeyID: parts[0],
		DateStamp:   parts[1],
		Region:      parts[2],
		Service:     parts[3],
	}, nil
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}
