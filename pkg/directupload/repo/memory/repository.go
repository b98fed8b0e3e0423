package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/direct-upload/pkg/directupload"
)

// Repository implements directupload.AuthorizationLog using in-memory storage
type Repository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*directupload.AuthorizationRecord
}

// New creates a new in-memory authorization log
func New() directupload.AuthorizationLog {
	return &Repository{
		records: make(map[uuid.UUID]*directupload.AuthorizationRecord),
	}
}

func (r *Repository) Record(ctx context.Context, record *directupload.AuthorizationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Create a copy to avoid external modifications
	recordCopy := *record
	r.records[record.ID] = &recordCopy
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*directupload.AuthorizationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[id]
	if !exists {
		return nil, directupload.ErrAuthorizationNotFound
	}

	recordCopy := *record
	return &recordCopy, nil
}

// List returns up to limit records, newest first. A limit <= 0 returns all of them.
func (r *Repository) List(ctx context.Context, limit int) ([]*directupload.AuthorizationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*directupload.AuthorizationRecord, 0, len(r.records))
	for _, record := range r.records {
		recordCopy := *record
		result = append(result, &recordCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
