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

// queue holds one scope's entries in enqueue order, so position is index+1.
type queue struct {
	mu      sync.Mutex
	entries []models.WaitlistEntry
}

func (q *queue) renumber() {
	for i := range q.entries {
		q.entries[i].Position = i + 1
	}
}

func (q *queue) indexOf(identity models.Identity) int {
	for i, entry := range q.entries {
		if entry.Identity().Matches(identity) {
			return i
		}
	}
	return -1
}

// WaitlistStore keeps waitlist entries in memory.
type WaitlistStore struct {
	mu     sync.Mutex
	queues map[string]*queue
	scopes map[string]string
	now    func() time.Time
}

// NewWaitlistStore constructs an empty store.
func NewWaitlistStore() *WaitlistStore {
	return &WaitlistStore{
		queues: make(map[string]*queue),
		scopes: make(map[string]string),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *WaitlistStore) queue(scopeKey string, create bool) *queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[scopeKey]
	if !ok && create {
		q = &queue{}
		s.queues[scopeKey] = q
	}
	return q
}

// Enqueue appends the entry at the tail of its scope.
func (s *WaitlistStore) Enqueue(_ context.Context, entry *models.WaitlistEntry) error {
	q := s.queue(entry.ScopeKey, true)
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexOf(entry.Identity()) >= 0 {
		return repository.ErrAlreadyQueued
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	entry.Position = len(q.entries) + 1
	entry.Notified = false
	entry.NotifiedAt = nil
	q.entries = append(q.entries, *entry)

	s.mu.Lock()
	s.scopes[entry.ID] = entry.ScopeKey
	s.mu.Unlock()
	return nil
}

// Remove deletes an entry and renumbers its scope.
func (s *WaitlistStore) Remove(_ context.Context, entryID string) (*models.WaitlistEntry, error) {
	s.mu.Lock()
	scopeKey, ok := s.scopes[entryID]
	s.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	q := s.queue(scopeKey, false)
	if q == nil {
		return nil, repository.ErrNotFound
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for i, entry := range q.entries {
		if entry.ID != entryID {
			continue
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		q.renumber()
		s.mu.Lock()
		delete(s.scopes, entryID)
		s.mu.Unlock()
		return &entry, nil
	}
	return nil, repository.ErrNotFound
}

// MarkNotified flags up to limit un-notified entries with the lowest positions.
func (s *WaitlistStore) MarkNotified(_ context.Context, scopeKey string, limit int) ([]models.WaitlistEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := s.queue(scopeKey, false)
	if q == nil {
		return nil, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := s.now()
	var notified []models.WaitlistEntry
	for i := range q.entries {
		if len(notified) == limit {
			break
		}
		if q.entries[i].Notified {
			continue
		}
		at := now
		q.entries[i].Notified = true
		q.entries[i].NotifiedAt = &at
		notified = append(notified, q.entries[i])
	}
	return notified, nil
}

// FindByIdentity returns the entry of the identity in the scope.
func (s *WaitlistStore) FindByIdentity(_ context.Context, scopeKey string, identity models.Identity) (*models.WaitlistEntry, error) {
	q := s.queue(scopeKey, false)
	if q == nil {
		return nil, repository.ErrNotFound
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.indexOf(identity)
	if idx < 0 {
		return nil, repository.ErrNotFound
	}
	entry := q.entries[idx]
	return &entry, nil
}

// ListSessionEntries returns the identity's entries across the session scopes of an event.
func (s *WaitlistStore) ListSessionEntries(_ context.Context, eventID string, identity models.Identity) ([]models.WaitlistEntry, error) {
	s.mu.Lock()
	queues := make(map[string]*queue, len(s.queues))
	for key, q := range s.queues {
		queues[key] = q
	}
	s.mu.Unlock()

	keys := make([]string, 0, len(queues))
	for key := range queues {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []models.WaitlistEntry
	for _, key := range keys {
		q := queues[key]
		q.mu.Lock()
		for _, entry := range q.entries {
			if entry.EventID == eventID && entry.SessionID != nil && entry.Identity().Matches(identity) {
				out = append(out, entry)
			}
		}
		q.mu.Unlock()
	}
	return out, nil
}

// List returns a copy of the scope's entries ordered by position.
func (s *WaitlistStore) List(_ context.Context, scopeKey string) ([]models.WaitlistEntry, error) {
	q := s.queue(scopeKey, false)
	if q == nil {
		return []models.WaitlistEntry{}, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.WaitlistEntry, len(q.entries))
	copy(out, q.entries)
	return out, nil
}
