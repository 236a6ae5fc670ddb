package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/event-registration-api/internal/models"
)

// CapacityRepository keeps per-scope admission counters in Postgres.
// Admissions are a single conditional UPDATE so that check and increment
// cannot interleave with another caller.
type CapacityRepository struct {
	db *sqlx.DB
}

// NewCapacityRepository constructs the repository.
func NewCapacityRepository(db *sqlx.DB) *CapacityRepository {
	return &CapacityRepository{db: db}
}

// Get returns the counter for a scope.
func (r *CapacityRepository) Get(ctx context.Context, scopeKey string) (*models.CapacityCounter, error) {
	const query = `SELECT scope_key, total_capacity, used_capacity, updated_at FROM capacity_counters WHERE scope_key = $1`
	var counter models.CapacityCounter
	if err := r.db.GetContext(ctx, &counter, query, scopeKey); err != nil {
		if err = mapNoRows(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("get capacity counter: %w", err)
	}
	return &counter, nil
}

// Admit reserves n units if they fit. A negative total means unlimited.
func (r *CapacityRepository) Admit(ctx context.Context, scopeKey string, n int) (bool, error) {
	const query = `UPDATE capacity_counters
SET used_capacity = used_capacity + $2, updated_at = NOW()
WHERE scope_key = $1 AND (total_capacity < 0 OR used_capacity + $2 <= total_capacity)
RETURNING used_capacity`
	var used int
	err := r.db.GetContext(ctx, &used, query, scopeKey, n)
	if err == nil {
		return true, nil
	}
	if mapNoRows(err) != ErrNotFound {
		return false, fmt.Errorf("admit capacity: %w", err)
	}
	exists, err := r.exists(ctx, scopeKey)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// Release returns n units, never dropping below zero.
func (r *CapacityRepository) Release(ctx context.Context, scopeKey string, n int) error {
	const query = `UPDATE capacity_counters SET used_capacity = GREATEST(used_capacity - $2, 0), updated_at = NOW() WHERE scope_key = $1`
	res, err := r.db.ExecContext(ctx, query, scopeKey, n)
	if err != nil {
		return fmt.Errorf("release capacity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release capacity rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Upsert creates the counter or changes its total, keeping used untouched.
func (r *CapacityRepository) Upsert(ctx context.Context, scopeKey string, total int) error {
	const query = `INSERT INTO capacity_counters (scope_key, total_capacity, used_capacity, updated_at)
VALUES ($1, $2, 0, NOW())
ON CONFLICT (scope_key) DO UPDATE SET total_capacity = EXCLUDED.total_capacity, updated_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, scopeKey, total); err != nil {
		return fmt.Errorf("upsert capacity counter: %w", err)
	}
	return nil
}

func (r *CapacityRepository) exists(ctx context.Context, scopeKey string) (bool, error) {
	const query = `SELECT 1 FROM capacity_counters WHERE scope_key = $1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, scopeKey); err != nil {
		if mapNoRows(err) == ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("check capacity counter: %w", err)
	}
	return true, nil
}
