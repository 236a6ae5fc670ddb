package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/event-registration-api/internal/models"
	appErrors "github.com/noah-isme/event-registration-api/pkg/errors"
)

type capacityStore interface {
	Get(ctx context.Context, scopeKey string) (*models.CapacityCounter, error)
	Admit(ctx context.Context, scopeKey string, n int) (bool, error)
	Release(ctx context.Context, scopeKey string, n int) error
	Upsert(ctx context.Context, scopeKey string, total int) error
}

// CapacityLedger is the only component allowed to change admission counters.
// The store performs check and increment as one atomic step.
type CapacityLedger struct {
	store   capacityStore
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCapacityLedger constructs a CapacityLedger.
func NewCapacityLedger(store capacityStore, metrics *MetricsService, logger *zap.Logger) *CapacityLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityLedger{store: store, metrics: metrics, logger: logger}
}

// GetCapacity reports total, used and remaining units of a scope.
func (l *CapacityLedger) GetCapacity(ctx context.Context, scope models.Scope) (*models.CapacitySnapshot, error) {
	if !scope.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scope requires an event id")
	}
	counter, err := l.store.Get(ctx, scope.Key())
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "capacity not configured for scope")
		}
		return nil, persistenceFailure(ctx, l.logger, "capacity.get", err, zap.String("scope", scope.Key()))
	}
	snapshot := counter.Snapshot(scope)
	return &snapshot, nil
}

// TryAdmit reserves n units in the scope. A false result without error means
// the scope is full and nothing was changed.
func (l *CapacityLedger) TryAdmit(ctx context.Context, scope models.Scope, n int) (bool, error) {
	if !scope.Valid() {
		return false, appErrors.Clone(appErrors.ErrValidation, "scope requires an event id")
	}
	if n < 1 {
		return false, appErrors.Clone(appErrors.ErrValidation, "quantity must be at least 1")
	}
	admitted, err := l.store.Admit(ctx, scope.Key(), n)
	if err != nil {
		if isNotFound(err) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "capacity not configured for scope")
		}
		return false, persistenceFailure(ctx, l.logger, "capacity.admit", err, zap.String("scope", scope.Key()), zap.Int("units", n))
	}
	l.metrics.RecordAdmission(string(scope.Kind()), admitted)
	l.logger.Debug("admission decided", zap.String("scope", scope.Key()), zap.Int("units", n), zap.Bool("admitted", admitted))
	return admitted, nil
}

// Release returns n units to the scope, floored at zero. Callers guard against
// double release through the registration status transition.
func (l *CapacityLedger) Release(ctx context.Context, scope models.Scope, n int) error {
	if !scope.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "scope requires an event id")
	}
	if n < 1 {
		return appErrors.Clone(appErrors.ErrValidation, "quantity must be at least 1")
	}
	if err := l.store.Release(ctx, scope.Key(), n); err != nil {
		if isNotFound(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "capacity not configured for scope")
		}
		return persistenceFailure(ctx, l.logger, "capacity.release", err, zap.String("scope", scope.Key()), zap.Int("units", n))
	}
	return nil
}

// Configure sets the total of a scope, creating the counter when missing.
// Use models.UnlimitedCapacity for an unbounded scope. Lowering the total
// below the used count only blocks further admissions.
func (l *CapacityLedger) Configure(ctx context.Context, scope models.Scope, total int) error {
	if !scope.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "scope requires an event id")
	}
	if total < 0 {
		total = models.UnlimitedCapacity
	}
	if err := l.store.Upsert(ctx, scope.Key(), total); err != nil {
		return persistenceFailure(ctx, l.logger, "capacity.configure", err, zap.String("scope", scope.Key()))
	}
	return nil
}
