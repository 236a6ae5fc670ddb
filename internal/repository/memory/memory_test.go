package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/event-registration-api/internal/models"
	"github.com/noah-isme/event-registration-api/internal/repository"
)

func TestCapacityStoreConcurrentAdmitsRespectTotal(t *testing.T) {
	store := NewCapacityStore()
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, "event:e1", 10))

	var admitted int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Admit(ctx, "event:e1", 1)
			if err == nil && ok {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), admitted)
	counter, err := store.Get(ctx, "event:e1")
	require.NoError(t, err)
	assert.Equal(t, 10, counter.Used)
}

func TestCapacityStoreReleaseFloorsAtZero(t *testing.T) {
	store := NewCapacityStore()
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, "event:e1", 2))
	_, err := store.Admit(ctx, "event:e1", 1)
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, "event:e1", 3))
	counter, err := store.Get(ctx, "event:e1")
	require.NoError(t, err)
	assert.Equal(t, 0, counter.Used)
	assert.ErrorIs(t, store.Release(ctx, "event:x", 1), repository.ErrNotFound)
}

func waitlistPositions(t *testing.T, store *WaitlistStore, scopeKey string) ([]int, []string) {
	entries, err := store.List(context.Background(), scopeKey)
	require.NoError(t, err)
	positions := make([]int, len(entries))
	emails := make([]string, len(entries))
	for i, entry := range entries {
		positions[i] = entry.Position
		emails[i] = entry.Email
	}
	return positions, emails
}

func TestWaitlistStoreRemoveKeepsPositionsContiguous(t *testing.T) {
	store := NewWaitlistStore()
	ctx := context.Background()
	scope := models.EventScope("e1")
	var ids []string
	for i := 0; i < 5; i++ {
		entry := models.NewWaitlistEntry(scope, models.Identity{Email: fmt.Sprintf("p%d@x.io", i)})
		require.NoError(t, store.Enqueue(ctx, entry))
		assert.Equal(t, i+1, entry.Position)
		ids = append(ids, entry.ID)
	}

	_, err := store.Remove(ctx, ids[1])
	require.NoError(t, err)
	_, err = store.Remove(ctx, ids[3])
	require.NoError(t, err)

	positions, emails := waitlistPositions(t, store, scope.Key())
	assert.Equal(t, []int{1, 2, 3}, positions)
	assert.Equal(t, []string{"p0@x.io", "p2@x.io", "p4@x.io"}, emails)

	_, err = store.Remove(ctx, ids[1])
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWaitlistStoreRejectsQueuedIdentity(t *testing.T) {
	store := NewWaitlistStore()
	ctx := context.Background()
	scope := models.EventScope("e1")
	userID := "u-1"

	first := models.NewWaitlistEntry(scope, models.Identity{UserID: userID, Email: "a@x.io"})
	require.NoError(t, store.Enqueue(ctx, first))

	dup := models.NewWaitlistEntry(scope, models.Identity{Email: "A@X.io"})
	assert.ErrorIs(t, store.Enqueue(ctx, dup), repository.ErrAlreadyQueued)

	other := models.NewWaitlistEntry(models.SessionScope("e1", "s1"), models.Identity{UserID: userID})
	require.NoError(t, store.Enqueue(ctx, other))
	assert.Equal(t, 1, other.Position)

	positions, _ := waitlistPositions(t, store, scope.Key())
	assert.Equal(t, []int{1}, positions)
}

func TestWaitlistStoreConcurrentEnqueueIsGapFree(t *testing.T) {
	store := NewWaitlistStore()
	ctx := context.Background()
	scope := models.EventScope("e1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Enqueue(ctx, models.NewWaitlistEntry(scope, models.Identity{Email: fmt.Sprintf("p%d@x.io", i)}))
		}(i)
	}
	wg.Wait()

	positions, _ := waitlistPositions(t, store, scope.Key())
	require.Len(t, positions, 50)
	for i, position := range positions {
		assert.Equal(t, i+1, position)
	}
}

func TestWaitlistStoreMarkNotifiedSkipsNotified(t *testing.T) {
	store := NewWaitlistStore()
	ctx := context.Background()
	scope := models.EventScope("e1")
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Enqueue(ctx, models.NewWaitlistEntry(scope, models.Identity{Email: fmt.Sprintf("p%d@x.io", i)})))
	}

	first, err := store.MarkNotified(ctx, scope.Key(), 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, first[0].Position)
	assert.Equal(t, 2, first[1].Position)

	second, err := store.MarkNotified(ctx, scope.Key(), 5)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "p2@x.io", second[0].Email)
	assert.NotNil(t, second[0].NotifiedAt)
}

func TestRegistrationStoreRejectsSecondActive(t *testing.T) {
	store := NewRegistrationStore()
	ctx := context.Background()
	userID := "u-1"

	first := &models.Registration{EventID: "e1", UserID: &userID, Email: "a@x.io", Quantity: 1}
	require.NoError(t, store.Create(ctx, first))
	assert.ErrorIs(t, store.Create(ctx, &models.Registration{EventID: "e1", Email: "A@x.io", Quantity: 1}), repository.ErrDuplicate)

	ok, err := store.Cancel(ctx, first.ID, userID, "changed plans", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Cancel(ctx, first.ID, userID, "", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Create(ctx, &models.Registration{EventID: "e1", Email: "a@x.io", Quantity: 1}))
}

func TestSessionRegistrationStoreListsSessionsByStart(t *testing.T) {
	events := NewEventStore()
	registrations := NewRegistrationStore()
	store := NewSessionRegistrationStore(events, registrations)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	late, early := base.Add(3*time.Hour), base
	events.PutSession(models.Session{ID: "s-late", EventID: "e1", StartsAt: &late})
	events.PutSession(models.Session{ID: "s-early", EventID: "e1", StartsAt: &early})
	events.PutSession(models.Session{ID: "s-open", EventID: "e1"})

	for _, id := range []string{"s-open", "s-late", "s-early"} {
		require.NoError(t, store.Create(ctx, &models.SessionRegistration{SessionID: id, RegistrationID: "r-1"}))
	}
	assert.ErrorIs(t, store.Create(ctx, &models.SessionRegistration{SessionID: "s-late", RegistrationID: "r-1"}), repository.ErrDuplicate)

	sessions, err := store.ListSessionsByRegistration(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "s-early", sessions[0].ID)
	assert.Equal(t, "s-late", sessions[1].ID)
	assert.Equal(t, "s-open", sessions[2].ID)
}

func TestWaitlistStoreListSessionEntries(t *testing.T) {
	store := NewWaitlistStore()
	ctx := context.Background()
	ada := models.Identity{Email: "ada@x.io"}
	require.NoError(t, store.Enqueue(ctx, models.NewWaitlistEntry(models.EventScope("e1"), ada)))
	require.NoError(t, store.Enqueue(ctx, models.NewWaitlistEntry(models.SessionScope("e1", "s2"), ada)))
	require.NoError(t, store.Enqueue(ctx, models.NewWaitlistEntry(models.SessionScope("e1", "s1"), ada)))
	require.NoError(t, store.Enqueue(ctx, models.NewWaitlistEntry(models.SessionScope("e1", "s1"), models.Identity{Email: "bob@x.io"})))
	require.NoError(t, store.Enqueue(ctx, models.NewWaitlistEntry(models.SessionScope("e2", "s1"), ada)))

	entries, err := store.ListSessionEntries(ctx, "e1", ada)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.SessionScope("e1", "s1"), entries[0].Scope())
	assert.Equal(t, models.SessionScope("e1", "s2"), entries[1].Scope())
}
