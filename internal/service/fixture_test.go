package service

import (
	"sync"
	"testing"
	"time"

	"github.com/noah-isme/event-registration-api/internal/models"
	"github.com/noah-isme/event-registration-api/internal/repository/memory"
	"github.com/noah-isme/event-registration-api/pkg/eventbus"
)

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recorder) record(evt eventbus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) ofType(eventType eventbus.EventType) []eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []eventbus.Event
	for _, evt := range r.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type fixture struct {
	events        *memory.EventStore
	users         *memory.UserStore
	registrations *memory.RegistrationStore
	seats         *memory.SessionRegistrationStore
	capacity      *memory.CapacityStore
	waitlistStore *memory.WaitlistStore

	bus      *eventbus.Bus
	recorded *recorder

	ledger   *CapacityLedger
	waitlist *WaitlistQueue
	svc      *RegistrationService
	sessions *SessionRegistrationService
}

var allEventTypes = []eventbus.EventType{
	models.EventEnrollmentAdmitted,
	models.EventEnrollmentWaitlisted,
	models.EventEnrollmentCancelled,
	models.EventWaitlistEntryNotified,
	models.EventSessionRegistrationAdmitted,
	models.EventSessionRegistrationCancelled,
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		events:        memory.NewEventStore(),
		users:         memory.NewUserStore(),
		registrations: memory.NewRegistrationStore(),
		capacity:      memory.NewCapacityStore(),
		waitlistStore: memory.NewWaitlistStore(),
		bus:           eventbus.New(nil, nil),
		recorded:      &recorder{},
	}
	f.seats = memory.NewSessionRegistrationStore(f.events, f.registrations)
	for _, eventType := range allEventTypes {
		f.bus.Subscribe(eventType, f.recorded.record)
	}

	f.ledger = NewCapacityLedger(f.capacity, nil, nil)
	f.waitlist = NewWaitlistQueue(f.waitlistStore, f.bus, nil, nil)
	f.svc = NewRegistrationService(RegistrationDeps{
		Registrations: f.registrations,
		Seats:         f.seats,
		Events:        f.events,
		Ledger:        f.ledger,
		Waitlist:      f.waitlist,
		Eligibility:   NewCatalogEligibility(f.events),
		Pricing:       NewCatalogPricing(f.events),
		Users:         NewAccountDirectory(f.users, f.registrations),
		Bus:           f.bus,
	}, RegistrationConfig{MaxQuantity: 5})
	f.sessions = NewSessionRegistrationService(SessionRegistrationDeps{
		Registrations: f.registrations,
		Seats:         f.seats,
		Events:        f.events,
		Ledger:        f.ledger,
		Waitlist:      f.waitlist,
		Bus:           f.bus,
	}, 5)
	return f
}

func (f *fixture) publishedEvent(id string, capacity int) models.Event {
	event := models.Event{
		ID:             id,
		Title:          "Go Conference",
		Status:         models.EventStatusPublished,
		StartsAt:       time.Now().UTC().Add(7 * 24 * time.Hour),
		BasePriceCents: 0,
		Capacity:       capacity,
	}
	f.events.PutEvent(event)
	return event
}

func (f *fixture) session(id, eventID string, start time.Time, length time.Duration, capacity int) models.Session {
	end := start.Add(length)
	session := models.Session{ID: id, EventID: eventID, Title: "Session " + id, StartsAt: &start, EndsAt: &end, Capacity: capacity}
	f.events.PutSession(session)
	return session
}

func participant(eventID, email string) RegisterRequest {
	return RegisterRequest{EventID: eventID, Email: email, FullName: "Participant " + email, Quantity: 1}
}

func actorFor(email string) models.Actor {
	return models.Actor{Email: email}
}

func at(hour, minute int) time.Time {
	return time.Date(2030, 5, 1, hour, minute, 0, 0, time.UTC)
}
