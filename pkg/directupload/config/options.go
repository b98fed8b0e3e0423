package config

import (
	"fmt"
	"time"

	"github.com/tendant/direct-upload/pkg/directupload"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithCORS allows browser calls from the given origins
func WithCORS(origins ...string) Option {
	return func(c *ServerConfig) error {
		c.CORSAllowedOrigins = origins
		return nil
	}
}

// WithBucket sets the upload bucket and its region
func WithBucket(bucket, region string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("bucket cannot be empty")
		}
		c.Bucket = bucket
		if region != "" {
			c.Region = region
		}
		return nil
	}
}

// WithUploadPolicy sets the policy lifetime, canned ACL and size limit
func WithUploadPolicy(durationSeconds int, acl string, limitBytes int64) Option {
	return func(c *ServerConfig) error {
		if durationSeconds <= 0 {
			return fmt.Errorf("upload duration must be positive, got: %d", durationSeconds)
		}
		if limitBytes <= 0 {
			return fmt.Errorf("upload size limit must be positive, got: %d", limitBytes)
		}
		c.UploadDurationSeconds = durationSeconds
		c.UploadLimitBytes = limitBytes
		if acl != "" {
			c.UploadACL = acl
		}
		return nil
	}
}

// WithRole sets the role assumed for uploads and the credential lifetime
func WithRole(name, sessionName string, durationMinutes int) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return fmt.Errorf("role name cannot be empty")
		}
		c.RoleName = name
		if sessionName != "" {
			c.RoleSessionName = sessionName
		}
		if durationMinutes > 0 {
			c.STSMinDurationMinutes = durationMinutes
		}
		return nil
	}
}

// WithSTSCallTimeout bounds each STS and IAM call
func WithSTSCallTimeout(timeout time.Duration) Option {
	return func(c *ServerConfig) error {
		if timeout <= 0 {
			return fmt.Errorf("STS call timeout must be positive, got: %s", timeout)
		}
		c.STSCallTimeout = timeout
		return nil
	}
}

// WithURLStyle selects how the upload URL is addressed
func WithURLStyle(style directupload.URLStyle) Option {
	return func(c *ServerConfig) error {
		switch style {
		case directupload.URLStyleLegacy, directupload.URLStyleVirtual, directupload.URLStylePath:
			c.URLStyle = string(style)
			return nil
		default:
			return fmt.Errorf("invalid upload URL style: %s (valid: legacy, virtual, path)", style)
		}
	}
}

// WithS3Endpoint sets a custom S3 endpoint (for MinIO, LocalStack, etc.)
func WithS3Endpoint(endpoint string, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		c.S3Endpoint = endpoint
		c.S3UsePathStyle = usePathStyle
		return nil
	}
}

// WithServerSideEncryption encrypts objects written by the server.
// kmsKeyID is only used with aws:kms.
func WithServerSideEncryption(algorithm, kmsKeyID string) Option {
	return func(c *ServerConfig) error {
		if algorithm != "AES256" && algorithm != "aws:kms" {
			return fmt.Errorf("invalid SSE algorithm: %s (valid: AES256, aws:kms)", algorithm)
		}
		c.S3SSEAlgorithm = algorithm
		c.S3SSEKMSKeyID = kmsKeyID
		return nil
	}
}

// WithStaticCredentials sets AWS credentials instead of the default chain
func WithStaticCredentials(accessKeyID, secretAccessKey string) Option {
	return func(c *ServerConfig) error {
		c.AccessKeyID = accessKeyID
		c.SecretAccessKey = secretAccessKey
		return nil
	}
}

// WithStorage selects the object store backend ("s3" or "memory")
func WithStorage(storageType string) Option {
	return func(c *ServerConfig) error {
		if storageType != "s3" && storageType != "memory" {
			return fmt.Errorf("storage type must be 's3' or 'memory', got: %s", storageType)
		}
		c.StorageType = storageType
		return nil
	}
}

// WithDatabase configures the audit log backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}
