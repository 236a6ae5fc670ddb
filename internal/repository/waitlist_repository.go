package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/event-registration-api/internal/models"
)

const waitlistColumns = `id, scope_key, event_id, session_id, user_id, email, full_name, position, notified, notified_at, created_at`

// WaitlistRepository stores waitlist entries. Every mutation of a scope runs in a
// transaction holding a scope-keyed advisory lock, which serialises position
// assignment and renumbering per scope while leaving other scopes unblocked.
type WaitlistRepository struct {
	db *sqlx.DB
}

// NewWaitlistRepository constructs the repository.
func NewWaitlistRepository(db *sqlx.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

// Enqueue appends the entry at the tail of its scope and fills ID, Position and CreatedAt.
func (r *WaitlistRepository) Enqueue(ctx context.Context, entry *models.WaitlistEntry) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin waitlist transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockScope(ctx, tx, entry.ScopeKey); err != nil {
		return err
	}

	var existingID string
	const existsQuery = `SELECT id FROM waitlist_entries WHERE scope_key = $1 AND (user_id = $2 OR LOWER(email) = LOWER($3)) LIMIT 1`
	if err = tx.GetContext(ctx, &existingID, existsQuery, entry.ScopeKey, entry.UserID, entry.Email); err == nil {
		err = ErrAlreadyQueued
		return err
	} else if mapNoRows(err) != ErrNotFound {
		return fmt.Errorf("check waitlist entry: %w", err)
	}

	var position int
	const positionQuery = `SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist_entries WHERE scope_key = $1`
	if err = tx.GetContext(ctx, &position, positionQuery, entry.ScopeKey); err != nil {
		return fmt.Errorf("next waitlist position: %w", err)
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Position = position
	entry.Notified = false
	entry.NotifiedAt = nil

	const insertQuery = `INSERT INTO waitlist_entries (` + waitlistColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err = tx.ExecContext(ctx, insertQuery,
		entry.ID, entry.ScopeKey, entry.EventID, entry.SessionID, entry.UserID, entry.Email, entry.FullName,
		entry.Position, entry.Notified, entry.NotifiedAt, entry.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			err = ErrAlreadyQueued
			return err
		}
		return fmt.Errorf("insert waitlist entry: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit waitlist entry: %w", err)
	}
	return nil
}

// Remove deletes an entry and renumbers the rest of its scope to 1..N in enqueue order.
func (r *WaitlistRepository) Remove(ctx context.Context, entryID string) (removed *models.WaitlistEntry, err error) {
	var scopeKey string
	if err = r.db.GetContext(ctx, &scopeKey, `SELECT scope_key FROM waitlist_entries WHERE id = $1`, entryID); err != nil {
		if err = mapNoRows(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("find waitlist entry: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin waitlist transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockScope(ctx, tx, scopeKey); err != nil {
		return nil, err
	}

	var entry models.WaitlistEntry
	const deleteQuery = `DELETE FROM waitlist_entries WHERE id = $1 RETURNING ` + waitlistColumns
	if err = tx.GetContext(ctx, &entry, deleteQuery, entryID); err != nil {
		if err = mapNoRows(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("delete waitlist entry: %w", err)
	}

	const renumberQuery = `UPDATE waitlist_entries AS w SET position = ranked.rn
FROM (SELECT id, ROW_NUMBER() OVER (ORDER BY created_at ASC, position ASC) AS rn FROM waitlist_entries WHERE scope_key = $1) AS ranked
WHERE w.id = ranked.id AND w.position <> ranked.rn`
	if _, err = tx.ExecContext(ctx, renumberQuery, scopeKey); err != nil {
		return nil, fmt.Errorf("renumber waitlist: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit waitlist removal: %w", err)
	}
	return &entry, nil
}

// MarkNotified flags up to limit un-notified entries with the lowest positions and returns them.
func (r *WaitlistRepository) MarkNotified(ctx context.Context, scopeKey string, limit int) (entries []models.WaitlistEntry, err error) {
	if limit <= 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin waitlist transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockScope(ctx, tx, scopeKey); err != nil {
		return nil, err
	}

	const query = `UPDATE waitlist_entries SET notified = TRUE, notified_at = NOW()
WHERE id IN (SELECT id FROM waitlist_entries WHERE scope_key = $1 AND notified = FALSE ORDER BY position ASC LIMIT $2)
RETURNING ` + waitlistColumns
	if err = tx.SelectContext(ctx, &entries, query, scopeKey, limit); err != nil {
		return nil, fmt.Errorf("mark waitlist notified: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit waitlist notification: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	return entries, nil
}

// FindByIdentity returns the entry of the identity in the scope.
func (r *WaitlistRepository) FindByIdentity(ctx context.Context, scopeKey string, identity models.Identity) (*models.WaitlistEntry, error) {
	const query = `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE scope_key = $1 AND (user_id = $2 OR LOWER(email) = LOWER($3)) ORDER BY position ASC LIMIT 1`
	var entry models.WaitlistEntry
	if err := r.db.GetContext(ctx, &entry, query, scopeKey, nullableString(identity.UserID), identity.Email); err != nil {
		if err = mapNoRows(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("find waitlist entry: %w", err)
	}
	return &entry, nil
}

// ListSessionEntries returns the identity's entries across the session scopes of an event.
func (r *WaitlistRepository) ListSessionEntries(ctx context.Context, eventID string, identity models.Identity) ([]models.WaitlistEntry, error) {
	const query = `SELECT ` + waitlistColumns + ` FROM waitlist_entries
WHERE event_id = $1 AND session_id IS NOT NULL AND (user_id = $2 OR LOWER(email) = LOWER($3))
ORDER BY scope_key ASC`
	var entries []models.WaitlistEntry
	if err := r.db.SelectContext(ctx, &entries, query, eventID, nullableString(identity.UserID), identity.Email); err != nil {
		return nil, fmt.Errorf("list session waitlist entries: %w", err)
	}
	return entries, nil
}

// List returns the scope's entries ordered by position.
func (r *WaitlistRepository) List(ctx context.Context, scopeKey string) ([]models.WaitlistEntry, error) {
	const query = `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE scope_key = $1 ORDER BY position ASC`
	var entries []models.WaitlistEntry
	if err := r.db.SelectContext(ctx, &entries, query, scopeKey); err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return entries, nil
}

func lockScope(ctx context.Context, tx *sqlx.Tx, scopeKey string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, scopeKey); err != nil {
		return fmt.Errorf("lock waitlist scope: %w", err)
	}
	return nil
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
