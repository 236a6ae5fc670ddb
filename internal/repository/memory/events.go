package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/event-registration-api/internal/models"
	"github.com/noah-isme/event-registration-api/internal/repository"
)

// EventStore holds event catalogue data seeded through Put methods.
type EventStore struct {
	mu       sync.RWMutex
	events   map[string]models.Event
	sessions map[string]models.Session
	tickets  map[string]models.TicketType
}

// NewEventStore constructs an empty store.
func NewEventStore() *EventStore {
	return &EventStore{
		events:   make(map[string]models.Event),
		sessions: make(map[string]models.Session),
		tickets:  make(map[string]models.TicketType),
	}
}

// PutEvent stores or replaces an event.
func (s *EventStore) PutEvent(event models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
}

// PutSession stores or replaces a session.
func (s *EventStore) PutSession(session models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

// PutTicketType stores or replaces a ticket type.
func (s *EventStore) PutTicketType(ticket models.TicketType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[ticket.ID] = ticket
}

// FindByID returns an event.
func (s *EventStore) FindByID(_ context.Context, id string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &event, nil
}

// FindSession returns a session.
func (s *EventStore) FindSession(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

// FindTicketType returns a ticket type of the event.
func (s *EventStore) FindTicketType(_ context.Context, eventID, id string) (*models.TicketType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[id]
	if !ok || ticket.EventID != eventID {
		return nil, repository.ErrNotFound
	}
	return &ticket, nil
}

// UserStore keeps accounts in memory.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

// NewUserStore constructs an empty store.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]models.User)}
}

// FindByID returns a user by id.
func (s *UserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

// FindByEmail returns the user with the email, case-insensitive.
func (s *UserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

// Create inserts a user, rejecting a taken email.
func (s *UserStore) Create(_ context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Role == "" {
		user.Role = models.RoleParticipant
	}
	user.Email = strings.ToLower(user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	s.users[user.ID] = *user
	return nil
}
