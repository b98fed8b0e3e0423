package directupload

import (
	"context"

	"github.com/google/uuid"
)

// Service issues browser direct-upload authorizations
type Service interface {
	// Start runs the startup self-test and resolves the upload role once.
	// Concurrent callers share a single resolution; a failure is permanent.
	Start(ctx context.Context) error

	// Ready reports whether the role has been resolved
	Ready() bool

	// Authorize issues an authorization to upload under req.Directory + "/"
	Authorize(ctx context.Context, req AuthorizeRequest) (*UploadAuthorization, error)

	// AuthorizeNewDirectory creates a fresh random directory and authorizes uploads into it
	AuthorizeNewDirectory(ctx context.Context) (*UploadAuthorization, error)

	// ListAuthorizations returns the most recent audit records
	ListAuthorizations(ctx context.Context, limit int) ([]*AuthorizationRecord, error)

	// GetAuthorization returns one audit record, or ErrAuthorizationNotFound
	GetAuthorization(ctx context.Context, id uuid.UUID) (*AuthorizationRecord, error)

	// Settings returns the static settings the service was built with
	Settings() Settings
}
