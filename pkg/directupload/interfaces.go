package directupload

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// IssueRequest describes a role assumption scoped to one object key prefix
type IssueRequest struct {
	RoleARN         string
	SessionName     string
	Bucket          string
	ObjectKeyPrefix string
	DurationSeconds int32
}

// CredentialProvider obtains temporary credentials restricted to a key prefix
type CredentialProvider interface {
	// Issue assumes the role with an inline policy allowing only object writes under the prefix
	Issue(ctx context.Context, req IssueRequest) (*TemporaryCredential, error)
}

// RoleResolver looks up a role identifier from its name
type RoleResolver interface {
	ResolveRole(ctx context.Context, roleName string) (string, error)
}

// DirectoryMaker creates the zero-byte "directory/" marker object
type DirectoryMaker interface {
	CreateDirectory(ctx context.Context, directoryPath string) error
}

// ObjectStore is the storage collaborator used by the HTTP layer for
// operations that do not go through a browser POST
type ObjectStore interface {
	DirectoryMaker

	// GetDownloadURL returns a presigned URL for downloading an object
	GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error)

	// Upload writes content through the server
	Upload(ctx context.Context, objectKey string, contentType string, reader io.Reader) error

	// GetText returns an object's body as a string
	GetText(ctx context.Context, objectKey string) (string, error)

	// GetObject opens an object for reading. The caller closes Body.
	GetObject(ctx context.Context, objectKey string) (*Object, error)
}

// Object is an open object body with its stored metadata
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// AuthorizationLog records issued authorizations
type AuthorizationLog interface {
	Record(ctx context.Context, record *AuthorizationRecord) error
	Get(ctx context.Context, id uuid.UUID) (*AuthorizationRecord, error)
	List(ctx context.Context, limit int) ([]*AuthorizationRecord, error)
}
