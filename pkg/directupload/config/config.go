package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tendant/direct-upload/pkg/directupload"
	"github.com/tendant/direct-upload/pkg/directupload/sts"
)

var validate = validator.New()

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                   "8080",
		Environment:            "development",
		Region:                 "us-east-1",
		UploadDurationSeconds:  300,
		STSMinDurationMinutes:  15,
		STSMaxDurationSeconds:  int(sts.DefaultMaxDurationSeconds),
		STSCallTimeout:         sts.DefaultCallTimeout,
		UploadACL:              "private",
		UploadLimitBytes:       10 * 1024 * 1024,
		RoleSessionName:        "direct-upload",
		URLStyle:               string(directupload.URLStyleLegacy),
		PresignDurationSeconds: 3600,
		StorageType:            "s3",
		DatabaseType:           "memory",
	}
}

// ServerConfig represents configuration for the direct-upload server.
// Field tags are read by cleanenv; see WithEnv.
type ServerConfig struct {
	Port        string `env:"PORT" env-upd:"" env-description:"HTTP listen port" validate:"required,numeric"`
	Environment string `env:"ENVIRONMENT" env-upd:"" env-description:"development, production or testing" validate:"oneof=development production testing"`

	// Browser origins allowed to call the API; empty disables CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-upd:"" env-separator:"," env-description:"comma separated browser origins"`

	// Upload authorization
	Region                string `env:"AWS_REGION" env-upd:"" env-description:"bucket region"`
	Bucket                string `env:"S3_BUCKET" env-upd:"" env-description:"upload bucket name"`
	UploadDurationSeconds int    `env:"S3_UPLOAD_DURATION_SECONDS" env-upd:"" env-description:"lifetime of an upload policy"`
	UploadACL             string `env:"S3_UPLOAD_ACL" env-upd:"" env-description:"canned ACL uploaded objects receive"`
	UploadLimitBytes      int64  `env:"S3_UPLOAD_LIMIT_BYTES" env-upd:"" env-description:"largest accepted upload"`
	URLStyle              string `env:"UPLOAD_URL_STYLE" env-upd:"" env-description:"legacy, virtual or path"`

	// Role assumption
	RoleName              string        `env:"S3_UPLOAD_ROLE_NAME" env-upd:"" env-description:"IAM role assumed for uploads"`
	RoleSessionName       string        `env:"S3_UPLOAD_ROLE_SESSION_NAME" env-upd:"" env-description:"role session name"`
	STSMinDurationMinutes int           `env:"STS_MIN_DURATION_MINUTES" env-upd:"" env-description:"temporary credential lifetime"`
	STSMaxDurationSeconds int           `env:"STS_MAX_DURATION_SECONDS" env-upd:"" env-description:"role maximum session duration"`
	STSCallTimeout        time.Duration `env:"STS_CALL_TIMEOUT" env-upd:"" env-description:"timeout of each STS or IAM call"`
	AWSEndpoint           string        `env:"AWS_ENDPOINT" env-upd:"" env-description:"STS and IAM endpoint override"`

	// Storage
	StorageType            string `env:"STORAGE_TYPE" env-upd:"" env-description:"s3 or memory" validate:"oneof=s3 memory"`
	S3Endpoint             string `env:"S3_ENDPOINT" env-upd:"" env-description:"S3-compatible endpoint"`
	S3UsePathStyle         bool   `env:"S3_USE_PATH_STYLE" env-upd:"" env-description:"path-style S3 addressing"`
	PresignDurationSeconds int    `env:"S3_PRESIGN_DURATION_SECONDS" env-upd:"" env-description:"download URL lifetime" validate:"gt=0"`
	AccessKeyID            string `env:"AWS_ACCESS_KEY_ID" env-upd:"" env-description:"static access key for local endpoints"`
	SecretAccessKey        string `env:"AWS_SECRET_ACCESS_KEY" env-upd:"" env-description:"static secret key for local endpoints"`
	S3SSEAlgorithm         string `env:"S3_SSE_ALGORITHM" env-upd:"" env-description:"server-side encryption of stored objects: AES256 or aws:kms" validate:"omitempty,oneof=AES256 aws:kms"`
	S3SSEKMSKeyID          string `env:"S3_SSE_KMS_KEY_ID" env-upd:"" env-description:"KMS key for aws:kms encryption"`

	// Audit log
	DatabaseType string `env:"DATABASE_TYPE" env-upd:"" env-description:"memory or postgres" validate:"oneof=memory postgres"`
	DatabaseURL  string `env:"DATABASE_URL" env-upd:"" env-description:"postgres connection string" validate:"required_if=DatabaseType postgres"`
	DBSchema     string `env:"DB_SCHEMA" env-upd:"" env-description:"postgres schema for the audit table"`
}

// Settings returns the authorization settings of the configuration
func (c *ServerConfig) Settings() directupload.Settings {
	return directupload.Settings{
		Bucket:                    c.Bucket,
		Region:                    c.Region,
		UploadDurationSeconds:     c.UploadDurationSeconds,
		CredentialDurationMinutes: c.STSMinDurationMinutes,
		ACL:                       c.UploadACL,
		FileSizeLimitBytes:        c.UploadLimitBytes,
		RoleName:                  c.RoleName,
		RoleSessionName:           c.RoleSessionName,
		URLStyle:                  directupload.URLStyle(c.URLStyle),
		Endpoint:                  c.S3Endpoint,
	}
}

// Validate validates the server configuration. Struct tags are checked with
// go-playground/validator; the authorization settings by Settings().Validate.
func (c *ServerConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	if err := c.Settings().Validate(); err != nil {
		return err
	}

	credentialSeconds := c.STSMinDurationMinutes * 60
	if credentialSeconds < int(sts.DefaultMinDurationSeconds) || credentialSeconds > c.STSMaxDurationSeconds {
		return &directupload.ConfigurationError{
			Field: "sts_min_duration_minutes",
			Err:   fmt.Errorf("%w: %d seconds not in [%d, %d]", directupload.ErrOutOfRange, credentialSeconds, sts.DefaultMinDurationSeconds, c.STSMaxDurationSeconds),
		}
	}
	if c.STSCallTimeout <= 0 {
		return &directupload.ConfigurationError{Field: "sts_call_timeout", Err: directupload.ErrOutOfRange}
	}

	return nil
}
