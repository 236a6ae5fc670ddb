package service

import (
	"context"
	"time"

	"github.com/noah-isme/event-registration-api/internal/models"
)

// CachedEventReader serves event, session and ticket metadata through the
// cache when it is enabled. Misses and cache failures fall through to the store.
type CachedEventReader struct {
	store eventReader
	cache *CacheService
	ttl   time.Duration
}

// NewCachedEventReader wraps store with cache.
func NewCachedEventReader(store eventReader, cache *CacheService, ttl time.Duration) *CachedEventReader {
	return &CachedEventReader{store: store, cache: cache, ttl: ttl}
}

// FindByID returns an event.
func (r *CachedEventReader) FindByID(ctx context.Context, id string) (*models.Event, error) {
	key := "event:" + id
	var event models.Event
	if hit, _ := r.cache.Get(ctx, key, &event); hit {
		return &event, nil
	}
	found, err := r.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = r.cache.Set(ctx, key, found, r.ttl)
	return found, nil
}

// FindSession returns a session.
func (r *CachedEventReader) FindSession(ctx context.Context, id string) (*models.Session, error) {
	key := "session:" + id
	var session models.Session
	if hit, _ := r.cache.Get(ctx, key, &session); hit {
		return &session, nil
	}
	found, err := r.store.FindSession(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = r.cache.Set(ctx, key, found, r.ttl)
	return found, nil
}

// FindTicketType returns a ticket type of the event.
func (r *CachedEventReader) FindTicketType(ctx context.Context, eventID, id string) (*models.TicketType, error) {
	key := "ticket:" + eventID + ":" + id
	var ticket models.TicketType
	if hit, _ := r.cache.Get(ctx, key, &ticket); hit {
		return &ticket, nil
	}
	found, err := r.store.FindTicketType(ctx, eventID, id)
	if err != nil {
		return nil, err
	}
	_ = r.cache.Set(ctx, key, found, r.ttl)
	return found, nil
}

// Invalidate drops cached metadata of an event and the given sessions.
func (r *CachedEventReader) Invalidate(ctx context.Context, eventID string, sessionIDs ...string) error {
	keys := []string{"event:" + eventID}
	for _, id := range sessionIDs {
		keys = append(keys, "session:"+id)
	}
	return r.cache.Invalidate(ctx, keys...)
}
