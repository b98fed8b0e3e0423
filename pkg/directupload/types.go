package directupload

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// TemporaryCredential is a short-lived, path-scoped credential returned by role assumption.
// It is issued per authorization request and never persisted.
type TemporaryCredential struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ExpiresAt       time.Time
}

// String redacts the secret and the session token
func (c TemporaryCredential) String() string {
	return fmt.Sprintf("TemporaryCredential{AccessKeyID: %s, ExpiresAt: %s}", c.AccessKeyID, c.ExpiresAt.UTC().Format(time.RFC3339))
}

// LogValue implements slog.LogValuer so credentials never reach the logs in clear
func (c TemporaryCredential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("access_key_id", c.AccessKeyID),
		slog.Time("expires_at", c.ExpiresAt),
	)
}

// UploadAuthorization is the payload handed to the browser. Field names are
// the wire contract consumed by the browser's multipart POST form.
type UploadAuthorization struct {
	ObjectKey     string `json:"objectKey"`
	ACL           string `json:"acl"`
	UploadURL     string `json:"uploadUrl"`
	Policy        string `json:"policy"`
	SecurityToken string `json:"securityToken"`
	Date          string `json:"date"`
	Algorithm     string `json:"algorithm"`
	Credential    string `json:"credential"`
	Signature     string `json:"signature"`
	FileSizeLimit string `json:"fileSizeLimit"`
}

// Settings are the static options of the authorization pipeline
type Settings struct {
	Bucket string
	Region string

	// UploadDurationSeconds bounds the policy expiration window
	UploadDurationSeconds int

	// CredentialDurationMinutes is the lifetime requested from role assumption
	CredentialDurationMinutes int

	ACL                string
	FileSizeLimitBytes int64
	RoleName           string
	RoleSessionName    string

	// Upload URL addressing
	URLStyle URLStyle
	Endpoint string
}

// CredentialDurationSeconds converts the configured minutes to seconds
func (s Settings) CredentialDurationSeconds() int32 {
	return int32(s.CredentialDurationMinutes * 60)
}

// Validate checks the settings for missing or out of range values
func (s Settings) Validate() error {
	switch {
	case s.Bucket == "":
		return &ConfigurationError{Field: "bucket", Err: ErrMissingValue}
	case s.Region == "":
		return &ConfigurationError{Field: "region", Err: ErrMissingValue}
	case s.RoleName == "":
		return &ConfigurationError{Field: "role_name", Err: ErrMissingValue}
	case s.RoleSessionName == "":
		return &ConfigurationError{Field: "role_session_name", Err: ErrMissingValue}
	case s.ACL == "":
		return &ConfigurationError{Field: "acl", Err: ErrMissingValue}
	case s.UploadDurationSeconds <= 0:
		return &ConfigurationError{Field: "upload_duration_seconds", Err: ErrOutOfRange}
	case s.CredentialDurationMinutes <= 0:
		return &ConfigurationError{Field: "sts_min_duration_minutes", Err: ErrOutOfRange}
	case s.FileSizeLimitBytes <= 0:
		return &ConfigurationError{Field: "file_size_limit_bytes", Err: ErrOutOfRange}
	}
	if _, err := UploadURL(s.URLStyle, s.Bucket, s.Region, s.Endpoint); err != nil {
		return err
	}
	return nil
}

// AuthorizeRequest asks for an authorization to upload under Directory
type AuthorizeRequest struct {
	// Directory is the object key prefix without the trailing separator
	Directory string
}

// AuthorizationRecord is the audit entry kept for an issued authorization.
// It carries no key material.
type AuthorizationRecord struct {
	ID                  uuid.UUID `json:"id"`
	Bucket              string    `json:"bucket"`
	Region              string    `json:"region"`
	ObjectKey           string    `json:"object_key"`
	ExpiresAt           time.Time `json:"expires_at"`
	CredentialExpiresAt time.Time `json:"credential_expires_at"`
	CreatedAt           time.Time `json:"created_at"`
}
