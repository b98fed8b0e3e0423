package directupload

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tendant/direct-upload/pkg/directupload/sigv4"
)

// ResourceARNPrefix prefixes every S3 object resource identifier
const ResourceARNPrefix = "arn:aws:s3:::"

// CredentialScope returns accessKeyId/dateStamp/region/service/aws4_request
func CredentialScope(accessKeyID, dateStamp, region, service string) string {
	return sigv4.Scope{
		AccessKeyID: accessKeyID,
		DateStamp:   dateStamp,
		Region:      region,
		Service:     service,
	}.String()
}

// ScopedResource returns the resource the temporary credential may write to:
// every key under prefix, but neither siblings nor the prefix marker outside it.
func ScopedResource(bucket, objectKeyPrefix string) (string, error) {
	if bucket == "" {
		return "", &ConfigurationError{Field: "bucket", Err: ErrMissingValue}
	}
	if objectKeyPrefix == "" || !strings.HasSuffix(objectKeyPrefix, "/") {
		return "", &ConfigurationError{Field: "object_key_prefix", Err: ErrInvalidPrefix}
	}
	if hasPolicyMetachar(bucket) || hasPolicyMetachar(objectKeyPrefix) {
		return "", &ConfigurationError{Field: "object_key_prefix", Err: ErrUnsafePrefix}
	}
	return ResourceARNPrefix + bucket + "/" + objectKeyPrefix + "*", nil
}

// hasPolicyMetachar reports characters that IAM expands inside a resource:
// the * and ? wildcards, ${...} policy variables, and control characters.
func hasPolicyMetachar(s string) bool {
	for _, r := range s {
		switch {
		case r == '*', r == '?', r == '$', r == '{', r == '}':
			return true
		case r < 0x20, r == 0x7f:
			return true
		}
	}
	return false
}

// AssembleInput carries the outputs of the pipeline stages
type AssembleInput struct {
	ObjectKey      string
	ACL            string
	UploadURL      string
	Base64Policy   string
	SecurityToken  string
	ISODate        string
	Credential     string
	Signature      string
	SizeLimitBytes int64
}

// Assemble combines the pipeline outputs into the browser payload.
// An empty required field is a programming or configuration error.
func Assemble(in AssembleInput) (*UploadAuthorization, error) {
	required := []struct {
		name  string
		value string
	}{
		{"objectKey", in.ObjectKey},
		{"acl", in.ACL},
		{"uploadUrl", in.UploadURL},
		{"policy", in.Base64Policy},
		{"securityToken", in.SecurityToken},
		{"date", in.ISODate},
		{"credential", in.Credential},
		{"signature", in.Signature},
	}
	for _, f := range required {
		if f.value == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}
	if in.SizeLimitBytes <= 0 {
		return nil, fmt.Errorf("%w: fileSizeLimit", ErrMissingField)
	}

	return &UploadAuthorization{
		ObjectKey:     in.ObjectKey,
		ACL:           in.ACL,
		UploadURL:     in.UploadURL,
		Policy:        in.Base64Policy,
		SecurityToken: in.SecurityToken,
		Date:          in.ISODate,
		Algorithm:     sigv4.Algorithm,
		Credential:    in.Credential,
		Signature:     in.Signature,
		FileSizeLimit: strconv.FormatInt(in.SizeLimitBytes, 10),
	}, nil
}
