package directupload

import (
	"context"

	"github.com/google/uuid"
)

// NoopAuthorizationLog is a no-operation implementation of AuthorizationLog
// Useful when issued authorizations do not need to be audited
type NoopAuthorizationLog struct{}

// NewNoopAuthorizationLog creates a new no-operation authorization log
func NewNoopAuthorizationLog() AuthorizationLog {
	return &NoopAuthorizationLog{}
}

// Record does nothing and returns nil
func (n *NoopAuthorizationLog) Record(ctx context.Context, record *AuthorizationRecord) error {
	return nil
}

// Get always reports the record as missing
func (n *NoopAuthorizationLog) Get(ctx context.Context, id uuid.UUID) (*AuthorizationRecord, error) {
	return nil, ErrAuthorizationNotFound
}

// List returns no records
func (n *NoopAuthorizationLog) List(ctx context.Context, limit int) ([]*AuthorizationRecord, error) {
	return nil, nil
}
