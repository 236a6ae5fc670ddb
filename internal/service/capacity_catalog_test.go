package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/event-registration-api/internal/models"
	appErrors "github.com/noah-isme/event-registration-api/pkg/errors"
)

func TestCapacityCatalogReportsCatalogueCapacityBeforeFirstAdmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publishedEvent("evt-1", 10)
	f.session("ses-1", "evt-1", at(10, 0), time.Hour, 3)
	catalog := NewCapacityCatalog(f.ledger, f.events, nil)

	snapshot, err := catalog.GetCapacity(ctx, models.EventScope("evt-1"))
	require.NoError(t, err)
	assert.Equal(t, 10, snapshot.Total)
	assert.Equal(t, 0, snapshot.Used)
	assert.Equal(t, 10, snapshot.Remaining)

	snapshot, err = catalog.GetCapacity(ctx, models.SessionScope("evt-1", "ses-1"))
	require.NoError(t, err)
	assert.Equal(t, 3, snapshot.Remaining)

	_, err = f.ledger.GetCapacity(ctx, models.EventScope("evt-1"))
	assert.ErrorIs(t, err, appErrors.ErrNotFound, "reading capacity must not create a counter")
}

func TestCapacityCatalogUnlimitedEvent(t *testing.T) {
	f := newFixture(t)
	f.publishedEvent("evt-1", models.UnlimitedCapacity)
	catalog := NewCapacityCatalog(f.ledger, f.events, nil)

	snapshot, err := catalog.GetCapacity(context.Background(), models.EventScope("evt-1"))
	require.NoError(t, err)
	assert.True(t, snapshot.Unlimited)
	assert.Equal(t, models.UnlimitedCapacity, snapshot.Remaining)
}

func TestCapacityCatalogReportsCounterAfterAdmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publishedEvent("evt-1", 2)
	catalog := NewCapacityCatalog(f.ledger, f.events, nil)

	_, err := f.svc.Register(ctx, participant("evt-1", "a@example.com"))
	require.NoError(t, err)

	snapshot, err := catalog.GetCapacity(ctx, models.EventScope("evt-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Used)
	assert.Equal(t, 1, snapshot.Remaining)
}

func TestCapacityCatalogRejectsUnknownScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publishedEvent("evt-1", 10)
	f.publishedEvent("evt-2", 10)
	f.session("ses-1", "evt-1", at(10, 0), time.Hour, 3)
	catalog := NewCapacityCatalog(f.ledger, f.events, nil)

	_, err := catalog.GetCapacity(ctx, models.EventScope("missing"))
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = catalog.GetCapacity(ctx, models.SessionScope("evt-2", "ses-1"))
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	err = catalog.Configure(ctx, models.SessionScope("evt-2", "ses-1"), 5)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	err = catalog.Configure(ctx, models.SessionScope("evt-1", "nope"), 5)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = f.ledger.GetCapacity(ctx, models.SessionScope("evt-2", "ses-1"))
	assert.ErrorIs(t, err, appErrors.ErrNotFound, "no counter is created for an orphan scope")

	err = catalog.Configure(ctx, models.Scope{}, 5)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCapacityCatalogConfigure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publishedEvent("evt-1", 10)
	f.session("ses-1", "evt-1", at(10, 0), time.Hour, 3)
	catalog := NewCapacityCatalog(f.ledger, f.events, nil)

	require.NoError(t, catalog.Configure(ctx, models.SessionScope("evt-1", "ses-1"), 7))
	snapshot, err := catalog.GetCapacity(ctx, models.SessionScope("evt-1", "ses-1"))
	require.NoError(t, err)
	assert.Equal(t, 7, snapshot.Total)
}
