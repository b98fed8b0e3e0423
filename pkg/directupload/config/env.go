package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// WithDotEnv loads variables from .env files into the process environment.
// Missing files are ignored and variables already set win. A file that
// exists but cannot be parsed is an error.
func WithDotEnv(files ...string) Option {
	return func(c *ServerConfig) error {
		if len(files) == 0 {
			files = []string{".env"}
		}
		for _, file := range files {
			if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load %s: %w", file, err)
			}
		}
		return nil
	}
}

// WithEnv overrides fields with the environment variables named in the
// ServerConfig tags. Unset variables keep the current value.
//
// Environment variables:
//
//	PORT, ENVIRONMENT, CORS_ALLOWED_ORIGINS
//	AWS_REGION, S3_BUCKET, S3_UPLOAD_DURATION_SECONDS, S3_UPLOAD_ACL,
//	S3_UPLOAD_LIMIT_BYTES, UPLOAD_URL_STYLE
//	S3_UPLOAD_ROLE_NAME, S3_UPLOAD_ROLE_SESSION_NAME, STS_MIN_DURATION_MINUTES,
//	STS_MAX_DURATION_SECONDS, STS_CALL_TIMEOUT, AWS_ENDPOINT
//	STORAGE_TYPE, S3_ENDPOINT, S3_USE_PATH_STYLE, S3_PRESIGN_DURATION_SECONDS,
//	AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, S3_SSE_ALGORITHM, S3_SSE_KMS_KEY_ID
//	DATABASE_URL, DATABASE_TYPE, DB_SCHEMA
//
// A DATABASE_URL with a postgres:// or postgresql:// scheme selects the
// postgres audit log when DATABASE_TYPE is not set.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.UpdateEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}

		if _, explicit := os.LookupEnv("DATABASE_TYPE"); !explicit && c.DatabaseURL != "" {
			switch {
			case c.DatabaseURL == "memory":
				c.DatabaseType = "memory"
				c.DatabaseURL = ""
			case strings.HasPrefix(c.DatabaseURL, "postgresql://"), strings.HasPrefix(c.DatabaseURL, "postgres://"):
				c.DatabaseType = "postgres"
			default:
				return fmt.Errorf("unsupported DATABASE_URL format (use 'memory' or 'postgresql://...')")
			}
		}
		return nil
	}
}

// LoadFromEnv loads .env files, then the environment, on top of the defaults
func LoadFromEnv(dotEnvFiles ...string) (*ServerConfig, error) {
	return Load(WithDotEnv(dotEnvFiles...), WithEnv())
}

// Usage returns the description of the recognised environment variables
func Usage() string {
	var cfg ServerConfig
	var b strings.Builder
	cleanenv.FUsage(&b, &cfg, nil)()
	return b.String()
}
