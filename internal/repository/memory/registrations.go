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

// RegistrationStore keeps registrations in memory.
type RegistrationStore struct {
	mu    sync.RWMutex
	items map[string]models.Registration
}

// NewRegistrationStore constructs an empty store.
func NewRegistrationStore() *RegistrationStore {
	return &RegistrationStore{items: make(map[string]models.Registration)}
}

// FindByID returns a registration by its ID.
func (s *RegistrationStore) FindByID(_ context.Context, id string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	registration, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &registration, nil
}

// FindActiveByIdentity returns the oldest active registration matching the identity.
func (s *RegistrationStore) FindActiveByIdentity(_ context.Context, eventID string, identity models.Identity) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if found := s.activeLocked(eventID, identity); found != nil {
		return found, nil
	}
	return nil, repository.ErrNotFound
}

func (s *RegistrationStore) activeLocked(eventID string, identity models.Identity) *models.Registration {
	var found *models.Registration
	for _, registration := range s.items {
		if registration.EventID != eventID || !registration.Active() || !registration.Identity().Matches(identity) {
			continue
		}
		if found == nil || registration.CreatedAt.Before(found.CreatedAt) {
			r := registration
			found = &r
		}
	}
	return found
}

// Create persists a registration, rejecting a second active one for the identity.
func (s *RegistrationStore) Create(_ context.Context, registration *models.Registration) error {
	if registration.ID == "" {
		registration.ID = uuid.NewString()
	}
	if registration.CreatedAt.IsZero() {
		registration.CreatedAt = time.Now().UTC()
	}
	if registration.Status == "" {
		registration.Status = models.RegistrationStatusActive
	}
	registration.Email = strings.ToLower(registration.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[registration.ID]; exists {
		return repository.ErrDuplicate
	}
	if registration.Active() && s.activeLocked(registration.EventID, registration.Identity()) != nil {
		return repository.ErrDuplicate
	}
	s.items[registration.ID] = *registration
	return nil
}

// Cancel moves an active registration to cancelled, reporting false if it was not active.
func (s *RegistrationStore) Cancel(_ context.Context, id, actorID, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	registration, ok := s.items[id]
	if !ok || !registration.Active() {
		return false, nil
	}
	registration.Status = models.RegistrationStatusCancelled
	registration.CancelledAt = &at
	if actorID != "" {
		registration.CancelledBy = &actorID
	}
	if reason != "" {
		registration.CancelReason = &reason
	}
	s.items[id] = registration
	return true, nil
}

// LinkUser attaches an account to a guest registration.
func (s *RegistrationStore) LinkUser(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	registration, ok := s.items[id]
	if !ok || registration.UserID != nil {
		return nil
	}
	registration.UserID = &userID
	s.items[id] = registration
	return nil
}
