package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	awssts "github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/direct-upload/pkg/directupload"
	"github.com/tendant/direct-upload/pkg/directupload/repo/memory"
	repopg "github.com/tendant/direct-upload/pkg/directupload/repo/postgres"
	memorystorage "github.com/tendant/direct-upload/pkg/directupload/storage/memory"
	s3storage "github.com/tendant/direct-upload/pkg/directupload/storage/s3"
	"github.com/tendant/direct-upload/pkg/directupload/sts"
)

// Runtime holds the components built from a ServerConfig
type Runtime struct {
	Service directupload.Service
	Store   directupload.ObjectStore
	Log     directupload.AuthorizationLog

	pool *pgxpool.Pool
}

// Close releases the database pool, if any
func (r *Runtime) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// LoadAWSConfig loads the SDK configuration for the bucket region, using the
// static keys when both are set and the default credential chain otherwise
func (c *ServerConfig) LoadAWSConfig(ctx context.Context) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.Region)}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// Build creates the service and its collaborators from the configuration.
// The service still has to be started.
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := c.LoadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}

	store, err := c.buildObjectStore(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build object store: %w", err)
	}

	log, pool, err := c.buildAuthorizationLog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build authorization log: %w", err)
	}

	svc, err := directupload.New(
		directupload.WithSettings(c.Settings()),
		directupload.WithCredentialProvider(c.buildCredentialProvider(awsCfg)),
		directupload.WithRoleResolver(c.buildRoleResolver(awsCfg)),
		directupload.WithDirectoryMaker(store),
		directupload.WithAuthorizationLog(log),
		directupload.WithLogger(logger),
	)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	return &Runtime{Service: svc, Store: store, Log: log, pool: pool}, nil
}

func (c *ServerConfig) buildCredentialProvider(awsCfg aws.Config) *sts.Provider {
	client := awssts.NewFromConfig(awsCfg, func(o *awssts.Options) {
		if c.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(c.AWSEndpoint)
		}
	})
	return sts.NewProvider(client,
		sts.WithDurationBounds(sts.DefaultMinDurationSeconds, int32(c.STSMaxDurationSeconds)),
		sts.WithCallTimeout(c.STSCallTimeout),
	)
}

func (c *ServerConfig) buildRoleResolver(awsCfg aws.Config) *sts.RoleResolver {
	client := iam.NewFromConfig(awsCfg, func(o *iam.Options) {
		if c.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(c.AWSEndpoint)
		}
	})
	return sts.NewRoleResolver(client, c.STSCallTimeout)
}

// buildObjectStore creates the storage collaborator selected by StorageType
func (c *ServerConfig) buildObjectStore(awsCfg aws.Config) (directupload.ObjectStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(fmt.Sprintf("http://localhost:%s/objects", c.Port)), nil
	case "s3":
		backend, err := s3storage.NewFromConfig(awsCfg, s3storage.Config{
			Region:          c.Region,
			Bucket:          c.Bucket,
			Endpoint:        c.S3Endpoint,
			UsePathStyle:    c.S3UsePathStyle,
			PresignDuration: c.PresignDurationSeconds,
			SSEAlgorithm:    c.S3SSEAlgorithm,
			SSEKMSKeyID:     c.S3SSEKMSKeyID,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

// buildAuthorizationLog creates the audit log selected by DatabaseType
func (c *ServerConfig) buildAuthorizationLog(ctx context.Context) (directupload.AuthorizationLog, *pgxpool.Pool, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil, nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, nil, errors.New("database_url is required for postgres")
		}
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		// Optionally set search_path for the connection
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		if err := repopg.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repopg.NewWithPool(pool), pool, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}
