package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/direct-upload/pkg/directupload"
)

// Schema creates the audit table. It is safe to apply repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS upload_authorization (
	id                    UUID PRIMARY KEY,
	bucket                TEXT NOT NULL,
	region                TEXT NOT NULL,
	object_key            TEXT NOT NULL,
	expires_at            TIMESTAMPTZ NOT NULL,
	credential_expires_at TIMESTAMPTZ NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS upload_authorization_created_at_idx ON upload_authorization (created_at DESC);`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements directupload.AuthorizationLog using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL authorization log
func New(db DBTX) directupload.AuthorizationLog {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL authorization log with connection pool
func NewWithPool(pool *pgxpool.Pool) directupload.AuthorizationLog {
	return &Repository{db: pool}
}

// Migrate applies Schema
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return handlePostgresError("migrate", err)
	}
	return nil
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return directupload.ErrAuthorizationNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("authorization already recorded")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) Record(ctx context.Context, record *directupload.AuthorizationRecord) error {
	query := `
		INSERT INTO upload_authorization (
			id, bucket, region, object_key, expires_at, credential_expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		record.ID, record.Bucket, record.Region, record.ObjectKey,
		record.ExpiresAt, record.CredentialExpiresAt, record.CreatedAt)
	if err != nil {
		return handlePostgresError("record authorization", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*directupload.AuthorizationRecord, error) {
	query := `
		SELECT id, bucket, region, object_key, expires_at, credential_expires_at, created_at
		FROM upload_authorization
		WHERE id = $1`

	record, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, handlePostgresError("get authorization", err)
	}
	return record, nil
}

// List returns up to limit records, newest first. A limit <= 0 returns all of them.
func (r *Repository) List(ctx context.Context, limit int) ([]*directupload.AuthorizationRecord, error) {
	query := `
		SELECT id, bucket, region, object_key, expires_at, credential_expires_at, created_at
		FROM upload_authorization
		ORDER BY created_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError("list authorizations", err)
	}
	defer rows.Close()

	var records []*directupload.AuthorizationRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, handlePostgresError("scan authorization", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list authorizations", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (*directupload.AuthorizationRecord, error) {
	var record directupload.AuthorizationRecord
	err := row.Scan(
		&record.ID, &record.Bucket, &record.Region, &record.ObjectKey,
		&record.ExpiresAt, &record.CredentialExpiresAt, &record.CreatedAt)
	if err != nil {
		return nil, err
	}
	record.ExpiresAt = record.ExpiresAt.UTC()
	record.CredentialExpiresAt = record.CredentialExpiresAt.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	return &record, nil
}
