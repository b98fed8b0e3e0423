package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/direct-upload/pkg/directupload"
	"github.com/tendant/direct-upload/pkg/directupload/repo/memory"
)

func newRecord(createdAt time.Time) *directupload.AuthorizationRecord {
	return &directupload.AuthorizationRecord{
		ID:                  uuid.New(),
		Bucket:              "upload-bucket",
		Region:              "us-east-1",
		ObjectKey:           uuid.New().String() + "/",
		ExpiresAt:           createdAt.Add(time.Hour),
		CredentialExpiresAt: createdAt.Add(15 * time.Minute),
		CreatedAt:           createdAt,
	}
}

func TestMemoryRepository_RecordAndGet(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	record := newRecord(time.Now().UTC())
	require.NoError(t, repo.Record(ctx, record))

	retrieved, err := repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record, retrieved)

	// Stored records are copies
	record.ObjectKey = "changed/"
	retrieved, err = repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "changed/", retrieved.ObjectKey)

	retrieved.Bucket = "changed"
	again, err := repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "upload-bucket", again.Bucket)
}

func TestMemoryRepository_GetMissing(t *testing.T) {
	repo := memory.New()
	_, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, directupload.ErrAuthorizationNotFound)
}

func TestMemoryRepository_List(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		record := newRecord(base.Add(time.Duration(i) * time.Minute))
		ids = append(ids, record.ID)
		require.NoError(t, repo.Record(ctx, record))
	}

	t.Run("NewestFirst", func(t *testing.T) {
		records, err := repo.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, records, 5)
		for i, record := range records {
			assert.Equal(t, ids[4-i], record.ID)
		}
	})

	t.Run("Limit", func(t *testing.T) {
		records, err := repo.List(ctx, 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, ids[4], records[0].ID)
		assert.Equal(t, ids[3], records[1].ID)
	})

	t.Run("Empty", func(t *testing.T) {
		records, err := memory.New().List(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}
