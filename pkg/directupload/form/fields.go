package form

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/direct-upload/pkg/directupload"
	"github.com/tendant/direct-upload/pkg/directupload/policy"
)

// Form field names that are not bound by policy conditions
const (
	FieldPolicy    = "policy"
	FieldSignature = "x-amz-signature"
	FieldFile      = "file"
)

var (
	// ErrPolicyViolation indicates form fields that S3 would reject under the policy
	ErrPolicyViolation = errors.New("form does not satisfy upload policy")

	// ErrPolicyExpired indicates an authorization whose policy has expired
	ErrPolicyExpired = errors.New("upload policy has expired")
)

// Field is one name/value pair of the multipart POST form
type Field struct {
	Name  string
	Value string
}

// Fields returns the form fields a browser submits for filename, in the
// order S3 expects them. The file part must follow them.
func Fields(auth *directupload.UploadAuthorization, filename string) []Field {
	return []Field{
		{Name: policy.FieldKey, Value: auth.ObjectKey + filename},
		{Name: policy.FieldACL, Value: auth.ACL},
		{Name: FieldPolicy, Value: auth.Policy},
		{Name: policy.FieldCredential, Value: auth.Credential},
		{Name: policy.FieldSecurityToken, Value: auth.SecurityToken},
		{Name: policy.FieldAlgorithm, Value: auth.Algorithm},
		{Name: policy.FieldDate, Value: auth.Date},
		{Name: FieldSignature, Value: auth.Signature},
	}
}

// Check evaluates the authorization's policy against the fields submitted for
// filename and a file of size bytes, the way S3 does before accepting a POST.
// bucket is the bucket the form is posted to.
func Check(auth *directupload.UploadAuthorization, bucket, filename string, size int64, now time.Time) error {
	doc, err := policy.Decode(auth.Policy)
	if err != nil {
		return err
	}
	if !now.Before(doc.Expiration) {
		return ErrPolicyExpired
	}

	values := map[string]string{policy.FieldBucket: bucket}
	for _, f := range Fields(auth, filename) {
		values[f.Name] = f.Value
	}

	bound := map[string]bool{}
	for _, cond := range doc.Conditions {
		switch c := cond.(type) {
		case policy.ExactMatch:
			bound[c.Field] = true
			if values[c.Field] != c.Value {
				return fmt.Errorf("%w: %s does not match", ErrPolicyViolation, c.Field)
			}
		case policy.PrefixMatch:
			bound[c.Field] = true
			if !strings.HasPrefix(values[c.Field], c.Prefix) {
				return fmt.Errorf("%w: %s does not start with the authorized prefix", ErrPolicyViolation, c.Field)
			}
		case policy.SizeRange:
			if size < c.Min || size > c.Max {
				return fmt.Errorf("%w: size %s outside [%d, %d]", ErrPolicyViolation, strconv.FormatInt(size, 10), c.Min, c.Max)
			}
		}
	}

	// Every submitted field except the policy and signature must be bound by a condition
	for _, f := range Fields(auth, filename) {
		if f.Name == FieldPolicy || f.Name == FieldSignature {
			continue
		}
		if !bound[f.Name] {
			return fmt.Errorf("%w: %s is not covered by a condition", ErrPolicyViolation, f.Name)
		}
	}
	return nil
}
