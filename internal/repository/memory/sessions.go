package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/event-registration-api/internal/models"
	"github.com/noah-isme/event-registration-api/internal/repository"
)

type pairKey struct {
	sessionID      string
	registrationID string
}

// SessionRegistrationStore keeps session seats in memory. It reads sessions and
// registrations from the sibling stores the way the SQL repository joins them.
type SessionRegistrationStore struct {
	mu            sync.RWMutex
	items         map[pairKey]models.SessionRegistration
	events        *EventStore
	registrations *RegistrationStore
}

// NewSessionRegistrationStore constructs an empty store.
func NewSessionRegistrationStore(events *EventStore, registrations *RegistrationStore) *SessionRegistrationStore {
	return &SessionRegistrationStore{
		items:         make(map[pairKey]models.SessionRegistration),
		events:        events,
		registrations: registrations,
	}
}

// Create persists a session registration, rejecting a duplicate pair.
func (s *SessionRegistrationStore) Create(_ context.Context, sr *models.SessionRegistration) error {
	if sr.ID == "" {
		sr.ID = uuid.NewString()
	}
	if sr.CreatedAt.IsZero() {
		sr.CreatedAt = time.Now().UTC()
	}
	if sr.AttendanceStatus == "" {
		sr.AttendanceStatus = models.AttendanceRegistered
	}
	key := pairKey{sr.SessionID, sr.RegistrationID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[key]; exists {
		return repository.ErrDuplicate
	}
	s.items[key] = *sr
	return nil
}

// Find returns the session registration for the pair.
func (s *SessionRegistrationStore) Find(_ context.Context, sessionID, registrationID string) (*models.SessionRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.items[pairKey{sessionID, registrationID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sr, nil
}

// Delete removes the pair and returns the deleted row.
func (s *SessionRegistrationStore) Delete(_ context.Context, sessionID, registrationID string) (*models.SessionRegistration, error) {
	key := pairKey{sessionID, registrationID}
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.items[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(s.items, key)
	return &sr, nil
}

// ListSessionsByRegistration returns the sessions held by a registration ordered by start time.
func (s *SessionRegistrationStore) ListSessionsByRegistration(ctx context.Context, registrationID string) ([]models.Session, error) {
	s.mu.RLock()
	var ids []string
	for key := range s.items {
		if key.registrationID == registrationID {
			ids = append(ids, key.sessionID)
		}
	}
	s.mu.RUnlock()

	sessions := make([]models.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.events.FindSession(ctx, id)
		if err != nil {
			continue
		}
		sessions = append(sessions, *session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i].StartsAt, sessions[j].StartsAt
		switch {
		case a == nil && b == nil:
			return sessions[i].ID < sessions[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

// UpdateAttendance sets the attendance status of the pair.
func (s *SessionRegistrationStore) UpdateAttendance(_ context.Context, sessionID, registrationID string, status models.AttendanceStatus) error {
	key := pairKey{sessionID, registrationID}
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.items[key]
	if !ok {
		return repository.ErrNotFound
	}
	sr.AttendanceStatus = status
	s.items[key] = sr
	return nil
}

// ListRoster returns the session's registrations with participant names.
func (s *SessionRegistrationStore) ListRoster(ctx context.Context, sessionID string) ([]models.SessionRosterRow, error) {
	s.mu.RLock()
	var seats []models.SessionRegistration
	for key, sr := range s.items {
		if key.sessionID == sessionID {
			seats = append(seats, sr)
		}
	}
	s.mu.RUnlock()

	rows := make([]models.SessionRosterRow, 0, len(seats))
	for _, sr := range seats {
		row := models.SessionRosterRow{SessionRegistration: sr}
		if registration, err := s.registrations.FindByID(ctx, sr.RegistrationID); err == nil {
			row.FullName = registration.FullName
			row.Email = registration.Email
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].FullName != rows[j].FullName {
			return rows[i].FullName < rows[j].FullName
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	return rows, nil
}
