package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/event-registration-api/internal/models"
	appErrors "github.com/noah-isme/event-registration-api/pkg/errors"
)

// CapacityCatalog reports and configures capacity of catalogued scopes.
// A scope must name an existing event, and a session scope a session of that
// event. Scopes that have no counter yet report the catalogue capacity with
// nothing used.
type CapacityCatalog struct {
	ledger *CapacityLedger
	events eventReader
	logger *zap.Logger
}

// NewCapacityCatalog constructs a CapacityCatalog.
func NewCapacityCatalog(ledger *CapacityLedger, events eventReader, logger *zap.Logger) *CapacityCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityCatalog{ledger: ledger, events: events, logger: logger}
}

// GetCapacity returns the counter of the scope, or the catalogue capacity
// when no registration has touched the scope yet.
func (c *CapacityCatalog) GetCapacity(ctx context.Context, scope models.Scope) (*models.CapacitySnapshot, error) {
	capacity, err := c.resolve(ctx, scope)
	if err != nil {
		return nil, err
	}
	snapshot, err := c.ledger.GetCapacity(ctx, scope)
	if err == nil {
		return snapshot, nil
	}
	if !errors.Is(err, appErrors.ErrNotFound) {
		return nil, err
	}
	fresh := models.CapacityCounter{Total: capacity}.Snapshot(scope)
	return &fresh, nil
}

// Configure sets the total of a catalogued scope.
func (c *CapacityCatalog) Configure(ctx context.Context, scope models.Scope, total int) error {
	if _, err := c.resolve(ctx, scope); err != nil {
		return err
	}
	return c.ledger.Configure(ctx, scope, total)
}

// resolve checks the scope against the catalogue and returns its capacity.
func (c *CapacityCatalog) resolve(ctx context.Context, scope models.Scope) (int, error) {
	if !scope.Valid() {
		return 0, appErrors.Clone(appErrors.ErrValidation, "scope requires an event id")
	}
	if scope.SessionID != "" {
		session, err := c.events.FindSession(ctx, scope.SessionID)
		if err != nil {
			if isNotFound(err) {
				return 0, appErrors.Clone(appErrors.ErrNotFound, "session not found")
			}
			return 0, persistenceFailure(ctx, c.logger, "session.find", err, zap.String("session_id", scope.SessionID))
		}
		if session.EventID != scope.EventID {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "session not found for event")
		}
		return session.Capacity, nil
	}
	event, err := c.events.FindByID(ctx, scope.EventID)
	if err != nil {
		if isNotFound(err) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return 0, persistenceFailure(ctx, c.logger, "event.find", err, zap.String("event_id", scope.EventID))
	}
	return event.Capacity, nil
}
