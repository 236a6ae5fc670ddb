// Package memory provides in-process stores with the same semantics as the
// Postgres repositories. Every scope has its own lock, so scopes never block
// each other while check-and-reserve stays atomic inside one scope.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/event-registration-api/internal/models"
	"github.com/noah-isme/event-registration-api/internal/repository"
)

type counter struct {
	mu      sync.Mutex
	total   int
	used    int
	updated time.Time
}

// CapacityStore keeps admission counters in memory.
type CapacityStore struct {
	mu       sync.RWMutex
	counters map[string]*counter
}

// NewCapacityStore constructs an empty store.
func NewCapacityStore() *CapacityStore {
	return &CapacityStore{counters: make(map[string]*counter)}
}

func (s *CapacityStore) lookup(scopeKey string) (*counter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counters[scopeKey]
	return c, ok
}

// Get returns a copy of the counter.
func (s *CapacityStore) Get(_ context.Context, scopeKey string) (*models.CapacityCounter, error) {
	c, ok := s.lookup(scopeKey)
	if !ok {
		return nil, repository.ErrNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return &models.CapacityCounter{ScopeKey: scopeKey, Total: c.total, Used: c.used, UpdatedAt: c.updated}, nil
}

// Admit reserves n units if they fit. A negative total means unlimited.
func (s *CapacityStore) Admit(_ context.Context, scopeKey string, n int) (bool, error) {
	c, ok := s.lookup(scopeKey)
	if !ok {
		return false, repository.ErrNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.total >= 0 && c.used+n > c.total {
		return false, nil
	}
	c.used += n
	c.updated = time.Now().UTC()
	return true, nil
}

// Release returns n units, never dropping below zero.
func (s *CapacityStore) Release(_ context.Context, scopeKey string, n int) error {
	c, ok := s.lookup(scopeKey)
	if !ok {
		return repository.ErrNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used -= n
	if c.used < 0 {
		c.used = 0
	}
	c.updated = time.Now().UTC()
	return nil
}

// Upsert creates the counter or changes its total, keeping used untouched.
func (s *CapacityStore) Upsert(_ context.Context, scopeKey string, total int) error {
	s.mu.Lock()
	c, ok := s.counters[scopeKey]
	if !ok {
		c = &counter{}
		s.counters[scopeKey] = c
	}
	s.mu.Unlock()

	c.mu.Lock()
	c.total = total
	c.updated = time.Now().UTC()
	c.mu.Unlock()
	return nil
}
