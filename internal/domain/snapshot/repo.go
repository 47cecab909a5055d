package snapshot

import (
	"context"
	"errors"
)

// ErrNoSnapshot is returned when no snapshot has been stored yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Repository persists scrape snapshots. Only the latest and the previous
// snapshot are ever needed; implementations may prune older ones.
type Repository interface {
	Save(ctx context.Context, s *Snapshot) error
	Latest(ctx context.Context) (*Snapshot, error)
}
