package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/event-registration-api/internal/models"
	appErrors "github.com/noah-isme/event-registration-api/pkg/errors"
)

type failingPricing struct{}

func (failingPricing) Quote(ctx context.Context, eventID string, ticket models.TicketDetails, quantity int) (int64, error) {
	return 0, errors.New("pricing backend down")
}

type flakyRegistrationStore struct {
	registrationStore
	createErr error
}

func (s *flakyRegistrationStore) Create(ctx context.Context, registration *models.Registration) error {
	if s.createErr != nil {
		return s.createErr
	}
	return s.registrationStore.Create(ctx, registration)
}

type brokenDirectory struct{}

func (brokenDirectory) EnsureAccount(ctx context.Context, identity models.Identity) (string, error) {
	return "", errors.New("directory unavailable")
}

func (brokenDirectory) LinkEnrollment(ctx context.Context, registrationID, accountID string) error {
	return nil
}

func remaining(t *testing.T, f *fixture, scope models.Scope) int {
	t.Helper()
	snapshot, err := f.ledger.GetCapacity(context.Background(), scope)
	require.NoError(t, err)
	return snapshot.Remaining
}

func TestRegisterScenarioCapacityThenWaitlist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishedEvent("evt-1", 2)
	scope := models.EventScope("evt-1")

	first, err := f.svc.Register(ctx, participant("evt-1", "one@example.com"))
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.NotEmpty(t, first.RegistrationID)

	second, err := f.svc.Register(ctx, participant("evt-1", "two@example.com"))
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 0, remaining(t, f, scope))

	third, err := f.svc.Register(ctx, participant("evt-1", "three@example.com"))
	require.NoError(t, err, "a full event is a result, not an error")
	assert.False(t, third.Success)
	assert.True(t, third.Waitlisted)
	assert.Equal(t, 1, third.Position)

	again, err := f.svc.Register(ctx, participant("evt-1", "three@example.com"))
	require.NoError(t, err)
	assert.True(t, again.AlreadyQueued)
	assert.Equal(t, 1, again.Position)

	assert.Len(t, f.recorded.ofType(models.EventEnrollmentAdmitted), 2)
	assert.Len(t, f.recorded.ofType(models.EventEnrollmentWaitlisted), 1)
}

func TestCancelScenarioReleasesAndNotifiesWaitlist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishedEvent("evt-1", 2)
	scope := models.EventScope("evt-1")

	first, err := f.svc.Register(ctx, participant("evt-1", "one@example.com"))
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, participant("evt-1", "two@example.com"))
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, participant("evt-1", "three@example.com"))
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, first.RegistrationID, actorFor("one@example.com"), "schedule clash")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "schedule clash", *cancelled.CancelReason)

	snapshot, err := f.ledger.GetCapacity(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Used)
	assert.Equal(t, 1, snapshot.Remaining)

	notified := f.recorded.ofType(models.EventWaitlistEntryNotified)
	require.Len(t, notified, 1)
	entry := notified[0].Data.(models.WaitlistEntryNotified).Entry
	assert.Equal(t, "three@example.com", entry.Email)
	assert.Equal(t, 1, entry.Position)
	assert.Len(t, f.recorded.ofType(models.EventEnrollmentCancelled), 1)

	// The notified entrant converts the offer by registering again.
	converted, err := f.svc.Register(ctx, participant("evt-1", "three@example.com"))
	require.NoError(t, err)
	assert.True(t, converted.Success)
	entries, err := f.waitlist.List(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishedEvent("evt-1", 5)
	scope := models.EventScope("evt-1")

	result, err := f.svc.Register(ctx, RegisterRequest{EventID: "evt-1", Email: "a@example.com", FullName: "A", Quantity: 3})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, result.RegistrationID, actorFor("a@example.com"), "")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining(t, f, scope))

	_, err = f.svc.Cancel(ctx, result.RegistrationID, actorFor("a@example.com"), "")
	assert.ErrorIs(t, err, appErrors.ErrAlreadyCancelled)
	assert.Equal(t, 5, remaining(t, f, scope), "used must not change")
}

func TestCancelAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishedEvent("evt-1", 5)

	result, err := f.svc.Register(ctx, participant("evt-1", "owner@example.com"))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, result.RegistrationID, actorFor("intruder@example.com"), "")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Cancel(ctx, result.RegistrationID, models.Actor{}, "")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Cancel(ctx, result.RegistrationID, models.Actor{UserID: "admin-1", Admin: true}, "no-show policy")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, "missing", actorFor("owner@example.com"), "")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestRegisterUnlimitedNeverWaitlists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishedEvent("evt-open", models.UnlimitedCapacity)

	for i := 0; i < 40; i++ {
		result, err := f.svc.Register(ctx, participant("evt-open", fmt.Sprintf("p%d@example.com", i)))
		require.NoError(t, err)
		require.True(t, result.Success)
	}
	entries, err := f.waitlist.List(ctx, models.EventScope("evt-open"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRegisterRejectsDuplicateIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishedEvent("evt-1", 10)

	_, err := f.svc.Register(ctx, RegisterRequest{EventID: "evt-1", UserID: "u-1", Email: "a@example.com", FullName: "A", Quantity: 1})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, participant("evt-1", "A@Example.com"))
	assert.ErrorIs(t, err, appErrors.ErrDuplicate, "guest email must match the account registration")

	_, err = f.svc.Register(ctx, RegisterRequest{EventID: "evt-1", UserID: "u-1", Email: "new@example.com", FullName: "A", Quantity: 1})
	assert.ErrorIs(t, err, appErrors.ErrDuplicate)
	assert.Equal(t, 9, remaining(t, f, models.EventScope("evt-1")))
}

func TestRegisterValidationAndEligibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishedEvent("evt-1", 10)
	closes := time.Now().UTC().Add(-time.Hour)
	f.events.PutEvent(models.Event{ID: "evt-closed", Status: models.EventStatusPublished, StartsAt: time.Now().UTC().Add(time.Hour), RegistrationClosesAt: &closes, Capacity: 10})
	f.events.PutEvent(models.Event{ID: "evt-draft", Status: models.EventStatusDraft, StartsAt: time.Now().UTC().Add(time.Hour), Capacity: 10})

	_, err := f.svc.Register(ctx, RegisterRequest{EventID: "evt-1", Email: "not-an-email", FullName: "A"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Register(ctx, RegisterRequest{EventID: "evt-1", Email: "a@example.com", FullName: "A", Quantity: 6})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Register(ctx, participant("missing", "a@example.com"))
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.svc.Register(ctx, participant("evt-closed", "a@example.com"))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrEligibility)
	assert.Equal(t, "registration is closed", appErrors.FromError(err).Message)

	_, err = f.svc.Register(ctx, participant("evt-draft", "a@example.com"))
	assert.ErrorIs(t, err, appErrors.ErrEligibility)
}

func TestRegisterPricesTicketAndLinksGuestAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishedEvent("evt-1", 10)
	f.events.PutTicketType(models.TicketType{ID: "vip", EventID: "evt-1", Name: "VIP", PriceCents: 2500, Active: true})

	req := participant("evt-1", "guest@example.com")
	req.Quantity = 2
	req.Ticket = models.TicketDetails{TicketTypeID: "vip"}
	result, err := f.svc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), result.AmountDueCents)
	assert.Equal(t, models.PaymentStatusPending, result.Registration.PaymentStatus)

	user, err := f.users.FindByEmail(ctx, "guest@example.com")
	require.NoError(t, err)
	assert.True(t, user.Guest)

	stored, err := f.registrations.FindByID(ctx, result.RegistrationID)
	require.NoError(t, err)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, user.ID, *stored.UserID)

	admitted := f.recorded.ofType(models.EventEnrollmentAdmitted)
	require.Len(t, admitted, 1)
	assert.Equal(t, user.ID, admitted[0].Data.(models.EnrollmentAdmitted).AccountID)
}

func TestRegisterCompensatesWhenPricingFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishedEvent("evt-1", 1)
	f.svc.pricing = failingPricing{}

	_, err := f.svc.Register(ctx, participant("evt-1", "a@example.com"))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrPersistence)
	assert.NotContains(t, err.Error(), "pricing backend")
	assert.Equal(t, 1, remaining(t, f, models.EventScope("evt-1")))

	f.svc.pricing = NewCatalogPricing(f.events)
	req := participant("evt-1", "a@example.com")
	req.Ticket.PromoCode = "FREE100"
	_, err = f.svc.Register(ctx, req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, 1, remaining(t, f, models.EventScope("evt-1")))
}

func TestRegisterCompensatesWhenPersistFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishedEvent("evt-1", 1)
	f.svc.registrations = &flakyRegistrationStore{registrationStore: f.registrations, createErr: errors.New("disk full")}

	_, err := f.svc.Register(ctx, participant("evt-1", "a@example.com"))
	assert.ErrorIs(t, err, appErrors.ErrPersistence)
	assert.Equal(t, 1, remaining(t, f, models.EventScope("evt-1")))
}

func TestRegisterSurvivesDirectoryFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishedEvent("evt-1", 1)
	f.svc.users = brokenDirectory{}

	result, err := f.svc.Register(ctx, participant("evt-1", "a@example.com"))
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRegisterConcurrentLastSeats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishedEvent("evt-1", 10)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		admitted   int
		waitlisted []int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.svc.Register(ctx, participant("evt-1", fmt.Sprintf("p%d@example.com", i)))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if result.Success {
				admitted++
			} else {
				waitlisted = append(waitlisted, result.Position)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, admitted)
	assert.Len(t, waitlisted, 40)
	assert.Equal(t, 0, remaining(t, f, models.EventScope("evt-1")))

	entries, err := f.waitlist.List(ctx, models.EventScope("evt-1"))
	require.NoError(t, err)
	for i, entry := range entries {
		assert.Equal(t, i+1, entry.Position)
	}
}

func TestCanCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.publishedEvent("evt-1", 10)
	deadline := event.StartsAt.Add(-48 * time.Hour)
	event.CancellationDeadline = &deadline
	f.events.PutEvent(event)

	result, err := f.svc.Register(ctx, participant("evt-1", "a@example.com"))
	require.NoError(t, err)

	verdict, err := f.svc.CanCancel(ctx, result.RegistrationID)
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)

	f.svc.now = func() time.Time { return deadline.Add(time.Minute) }
	verdict, err = f.svc.CanCancel(ctx, result.RegistrationID)
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, "cancellation deadline has passed", verdict.Reason)

	f.svc.now = func() time.Time { return event.StartsAt }
	verdict, err = f.svc.CanCancel(ctx, result.RegistrationID)
	require.NoError(t, err)
	assert.Equal(t, "event has already started", verdict.Reason)

	f.svc.now = func() time.Time { return time.Now().UTC() }
	_, err = f.svc.Cancel(ctx, result.RegistrationID, actorFor("a@example.com"), "")
	require.NoError(t, err)
	verdict, err = f.svc.CanCancel(ctx, result.RegistrationID)
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, "registration already cancelled", verdict.Reason)

	_, err = f.svc.CanCancel(ctx, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCanCancelUsesConfiguredCutoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.publishedEvent("evt-1", 10)
	f.svc.cfg.CancellationCutoff = 24 * time.Hour

	result, err := f.svc.Register(ctx, participant("evt-1", "a@example.com"))
	require.NoError(t, err)

	f.svc.now = func() time.Time { return event.StartsAt.Add(-12 * time.Hour) }
	verdict, err := f.svc.CanCancel(ctx, result.RegistrationID)
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
}

func TestCancelReleasesSessionSeats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishedEvent("evt-1", 10)
	f.session("ses-1", "evt-1", at(9, 0), time.Hour, 1)

	owner, err := f.svc.Register(ctx, participant("evt-1", "owner@example.com"))
	require.NoError(t, err)
	waiting, err := f.svc.Register(ctx, participant("evt-1", "waiting@example.com"))
	require.NoError(t, err)

	_, err = f.sessions.RegisterForSession(ctx, "ses-1", owner.RegistrationID, actorFor("owner@example.com"))
	require.NoError(t, err)
	queued, err := f.sessions.RegisterForSession(ctx, "ses-1", waiting.RegistrationID, actorFor("waiting@example.com"))
	require.NoError(t, err)
	require.True(t, queued.Waitlisted)

	_, err = f.svc.Cancel(ctx, owner.RegistrationID, actorFor("owner@example.com"), "")
	require.NoError(t, err)

	assert.Equal(t, 1, remaining(t, f, models.SessionScope("evt-1", "ses-1")))
	assert.Len(t, f.recorded.ofType(models.EventSessionRegistrationCancelled), 1)
	notified := f.recorded.ofType(models.EventWaitlistEntryNotified)
	require.Len(t, notified, 1)
	assert.Equal(t, "waiting@example.com", notified[0].Data.(models.WaitlistEntryNotified).Entry.Email)
}

func TestCancelClearsSessionWaitlistEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishedEvent("evt-1", 10)
	f.session("ses-1", "evt-1", at(9, 0), time.Hour, 1)
	f.session("ses-2", "evt-1", at(11, 0), time.Hour, 1)
	a := registered(t, f, "evt-1", "a@example.com")
	b := registered(t, f, "evt-1", "b@example.com")
	c := registered(t, f, "evt-1", "c@example.com")

	_, err := f.sessions.RegisterForSession(ctx, "ses-1", a, actorFor("a@example.com"))
	require.NoError(t, err)
	_, err = f.sessions.RegisterForSession(ctx, "ses-2", a, actorFor("a@example.com"))
	require.NoError(t, err)
	queued, err := f.sessions.RegisterForSession(ctx, "ses-1", b, actorFor("b@example.com"))
	require.NoError(t, err)
	require.True(t, queued.Waitlisted)
	queued, err = f.sessions.RegisterForSession(ctx, "ses-1", c, actorFor("c@example.com"))
	require.NoError(t, err)
	require.True(t, queued.Waitlisted)
	queued, err = f.sessions.RegisterForSession(ctx, "ses-2", b, actorFor("b@example.com"))
	require.NoError(t, err)
	require.True(t, queued.Waitlisted)

	_, err = f.svc.Cancel(ctx, b, actorFor("b@example.com"), "")
	require.NoError(t, err)

	entries, err := f.waitlist.List(ctx, models.SessionScope("evt-1", "ses-1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c@example.com", entries[0].Email)
	assert.Equal(t, 1, entries[0].Position)
	entries, err = f.waitlist.List(ctx, models.SessionScope("evt-1", "ses-2"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, f.sessions.CancelSessionRegistration(ctx, "ses-1", a, actorFor("a@example.com")))
	notified := f.recorded.ofType(models.EventWaitlistEntryNotified)
	require.Len(t, notified, 1)
	assert.Equal(t, "c@example.com", notified[0].Data.(models.WaitlistEntryNotified).Entry.Email)
}
