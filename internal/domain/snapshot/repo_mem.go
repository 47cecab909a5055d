package snapshot

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// memoryRepo keeps the latest and previous snapshot in process memory. Used
// when no DATABASE_URL is configured, and in tests.
type memoryRepo struct {
	mu       sync.RWMutex
	latest   *Snapshot
	previous *Snapshot
}

// NewMemoryRepo creates an empty in-memory Repository.
func NewMemoryRepo() Repository {
	return &memoryRepo{}
}

func (r *memoryRepo) Save(_ context.Context, s *Snapshot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.mu.Lock()
	r.previous = r.latest
	r.latest = s
	r.mu.Unlock()
	return nil
}

func (r *memoryRepo) Latest(_ context.Context) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return nil, ErrNoSnapshot
	}
	return r.latest, nil
}
