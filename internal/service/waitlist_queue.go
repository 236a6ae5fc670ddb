package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/event-registration-api/internal/models"
	"github.com/noah-isme/event-registration-api/internal/repository"
	appErrors "github.com/noah-isme/event-registration-api/pkg/errors"
	"github.com/noah-isme/event-registration-api/pkg/eventbus"
)

type waitlistStore interface {
	Enqueue(ctx context.Context, entry *models.WaitlistEntry) error
	Remove(ctx context.Context, entryID string) (*models.WaitlistEntry, error)
	MarkNotified(ctx context.Context, scopeKey string, limit int) ([]models.WaitlistEntry, error)
	FindByIdentity(ctx context.Context, scopeKey string, identity models.Identity) (*models.WaitlistEntry, error)
	ListSessionEntries(ctx context.Context, eventID string, identity models.Identity) ([]models.WaitlistEntry, error)
	List(ctx context.Context, scopeKey string) ([]models.WaitlistEntry, error)
}

// WaitlistQueue keeps a gap-free FIFO of participants waiting for a scope.
// Position assignment and renumbering are serialised per scope by the store.
type WaitlistQueue struct {
	store   waitlistStore
	bus     *eventbus.Bus
	metrics *MetricsService
	logger  *zap.Logger
}

// NewWaitlistQueue constructs a WaitlistQueue. The bus may be nil.
func NewWaitlistQueue(store waitlistStore, bus *eventbus.Bus, metrics *MetricsService, logger *zap.Logger) *WaitlistQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WaitlistQueue{store: store, bus: bus, metrics: metrics, logger: logger}
}

// IsAlreadyQueued reports whether err came from enqueueing an identity that already waits.
func IsAlreadyQueued(err error) bool {
	return errors.Is(err, repository.ErrAlreadyQueued)
}

// Enqueue appends the identity to the scope's waitlist and returns the stored entry.
// An identity already waiting yields an error matched by IsAlreadyQueued.
func (q *WaitlistQueue) Enqueue(ctx context.Context, scope models.Scope, identity models.Identity) (*models.WaitlistEntry, error) {
	identity = identity.Normalize()
	if !scope.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scope requires an event id")
	}
	if identity.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "participant identity is required")
	}
	entry := models.NewWaitlistEntry(scope, identity)
	if err := q.store.Enqueue(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrAlreadyQueued) {
			return nil, appErrors.Wrap(err, appErrors.ErrDuplicate.Code, appErrors.ErrDuplicate.Status, "already on the waitlist")
		}
		return nil, persistenceFailure(ctx, q.logger, "waitlist.enqueue", err, zap.String("scope", scope.Key()))
	}
	q.metrics.RecordWaitlist(string(scope.Kind()), "enqueue", 1)
	q.bus.Publish(models.EventEnrollmentWaitlisted, models.EnrollmentWaitlisted{Entry: *entry})
	return entry, nil
}

// Remove deletes an entry and renumbers the rest of its scope.
func (q *WaitlistQueue) Remove(ctx context.Context, entryID string) (*models.WaitlistEntry, error) {
	if entryID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "waitlist entry id is required")
	}
	entry, err := q.store.Remove(ctx, entryID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "waitlist entry not found")
		}
		return nil, persistenceFailure(ctx, q.logger, "waitlist.remove", err, zap.String("entry_id", entryID))
	}
	q.metrics.RecordWaitlist(string(entry.Scope().Kind()), "remove", 1)
	return entry, nil
}

// RemoveIdentity drops the identity's entry from the scope if it has one.
func (q *WaitlistQueue) RemoveIdentity(ctx context.Context, scope models.Scope, identity models.Identity) error {
	entry, err := q.store.FindByIdentity(ctx, scope.Key(), identity.Normalize())
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return persistenceFailure(ctx, q.logger, "waitlist.find", err, zap.String("scope", scope.Key()))
	}
	if _, err := q.Remove(ctx, entry.ID); err != nil && !errors.Is(err, appErrors.ErrNotFound) {
		return err
	}
	return nil
}

// RemoveFromSessions drops the identity from every session waitlist of the
// event and returns the number of entries removed.
func (q *WaitlistQueue) RemoveFromSessions(ctx context.Context, eventID string, identity models.Identity) (int, error) {
	identity = identity.Normalize()
	if eventID == "" || identity.Empty() {
		return 0, nil
	}
	entries, err := q.store.ListSessionEntries(ctx, eventID, identity)
	if err != nil {
		return 0, persistenceFailure(ctx, q.logger, "waitlist.list_sessions", err, zap.String("event_id", eventID))
	}
	removed := 0
	for _, entry := range entries {
		if _, err := q.Remove(ctx, entry.ID); err != nil {
			if errors.Is(err, appErrors.ErrNotFound) {
				continue
			}
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// ProcessWaitlist marks up to spots un-notified entries with the lowest
// positions and publishes one notification event per entry. Entries stay in
// the queue; the participant converts the offer by registering again.
func (q *WaitlistQueue) ProcessWaitlist(ctx context.Context, scope models.Scope, spots int) ([]models.WaitlistEntry, error) {
	if spots <= 0 {
		return nil, nil
	}
	entries, err := q.store.MarkNotified(ctx, scope.Key(), spots)
	if err != nil {
		return nil, persistenceFailure(ctx, q.logger, "waitlist.notify", err, zap.String("scope", scope.Key()), zap.Int("spots", spots))
	}
	q.metrics.RecordWaitlist(string(scope.Kind()), "notify", len(entries))
	for _, entry := range entries {
		q.bus.Publish(models.EventWaitlistEntryNotified, models.WaitlistEntryNotified{Entry: entry})
	}
	if len(entries) > 0 {
		q.logger.Info("waitlist entries notified", zap.String("scope", scope.Key()), zap.Int("count", len(entries)))
	}
	return entries, nil
}

// GetPosition returns the identity's current position in the scope.
func (q *WaitlistQueue) GetPosition(ctx context.Context, scope models.Scope, identity models.Identity) (*models.WaitlistEntry, error) {
	identity = identity.Normalize()
	if identity.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "participant identity is required")
	}
	entry, err := q.store.FindByIdentity(ctx, scope.Key(), identity)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "not on the waitlist")
		}
		return nil, persistenceFailure(ctx, q.logger, "waitlist.position", err, zap.String("scope", scope.Key()))
	}
	return entry, nil
}

// List returns the scope's entries ascending by position.
func (q *WaitlistQueue) List(ctx context.Context, scope models.Scope) ([]models.WaitlistEntry, error) {
	if !scope.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scope requires an event id")
	}
	entries, err := q.store.List(ctx, scope.Key())
	if err != nil {
		return nil, persistenceFailure(ctx, q.logger, "waitlist.list", err, zap.String("scope", scope.Key()))
	}
	if entries == nil {
		entries = []models.WaitlistEntry{}
	}
	return entries, nil
}
