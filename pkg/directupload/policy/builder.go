package policy

import (
	"fmt"
	"time"
)

// Params are the inputs of a POST policy. Every string becomes an exact or
// prefix condition that the browser form must reproduce byte for byte.
type Params struct {
	Bucket          string
	ObjectKeyPrefix string
	ACL             string
	CredentialScope string
	SecurityToken   string
	Algorithm       string
	ISODate         string
	SizeLimitBytes  int64
	ExpiresAt       time.Time
}

// Builder constructs policy documents
type Builder struct {
	now func() time.Time
}

// Option configures a Builder
type Option func(*Builder)

// WithClock overrides the clock used to check that the expiration is in the future
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder creates a Builder
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the eight conditions of a direct-upload policy in their fixed order:
// bucket, key prefix, acl, credential, security token, algorithm, date, size range.
func (b *Builder) Build(p Params) (*Document, error) {
	if p.SizeLimitBytes <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSizeLimit, p.SizeLimitBytes)
	}
	if now := b.now(); !p.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: %s is not after %s", ErrExpirationNotInFuture,
			p.ExpiresAt.UTC().Format(ExpirationFormat), now.UTC().Format(ExpirationFormat))
	}

	return &Document{
		Expiration: p.ExpiresAt.UTC(),
		Conditions: []Condition{
			ExactMatch{Field: FieldBucket, Value: p.Bucket},
			PrefixMatch{Field: FieldKey, Prefix: p.ObjectKeyPrefix},
			ExactMatch{Field: FieldACL, Value: p.ACL},
			ExactMatch{Field: FieldCredential, Value: p.CredentialScope},
			ExactMatch{Field: FieldSecurityToken, Value: p.SecurityToken},
			ExactMatch{Field: FieldAlgorithm, Value: p.Algorithm},
			ExactMatch{Field: FieldDate, Value: p.ISODate},
			SizeRange{Min: 0, Max: p.SizeLimitBytes},
		},
	}, nil
}
