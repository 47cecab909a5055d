package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgRepo struct{ pool *pgxpool.Pool }

// NewPGRepo creates a Postgres-backed Repository. Save prunes everything but
// the two most recent snapshots; the diffing cycle never looks further back.
func NewPGRepo(pool *pgxpool.Pool) Repository {
	return &pgRepo{pool: pool}
}

func (r *pgRepo) Save(ctx context.Context, s *Snapshot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	payload, err := json.Marshal(s.Locations)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO snapshots (id, taken_at, payload)
		VALUES ($1, $2, $3)`,
		s.ID, s.TakenAt, payload)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM snapshots
		WHERE id NOT IN (SELECT id FROM snapshots ORDER BY taken_at DESC LIMIT 2)`)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *pgRepo) Latest(ctx context.Context) (*Snapshot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, taken_at, payload FROM snapshots
		ORDER BY taken_at DESC LIMIT 1`)

	var s Snapshot
	var payload []byte
	err := row.Scan(&s.ID, &s.TakenAt, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}

	if err := json.Unmarshal(payload, &s.Locations); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &s, nil
}
