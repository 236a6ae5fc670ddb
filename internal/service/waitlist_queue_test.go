package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/event-registration-api/internal/models"
	"github.com/noah-isme/event-registration-api/internal/repository/memory"
	appErrors "github.com/noah-isme/event-registration-api/pkg/errors"
	"github.com/noah-isme/event-registration-api/pkg/eventbus"
)

func newTestWaitlist() (*WaitlistQueue, *recorder) {
	bus := eventbus.New(nil, nil)
	rec := &recorder{}
	for _, eventType := range allEventTypes {
		bus.Subscribe(eventType, rec.record)
	}
	return NewWaitlistQueue(memory.NewWaitlistStore(), bus, NewMetricsService(), nil), rec
}

func positions(entries []models.WaitlistEntry) []int {
	out := make([]int, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Position)
	}
	return out
}

func TestWaitlistQueueEnqueueAssignsNextPosition(t *testing.T) {
	ctx := context.Background()
	queue, rec := newTestWaitlist()
	scope := models.EventScope("evt-1")

	first, err := queue.Enqueue(ctx, scope, models.Identity{Email: "A@Example.com", Name: "A"})
	require.NoError(t, err)
	second, err := queue.Enqueue(ctx, scope, models.Identity{Email: "b@example.com", Name: "B"})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Position)
	assert.Equal(t, 2, second.Position)
	assert.Equal(t, "a@example.com", first.Email)
	assert.Len(t, rec.ofType(models.EventEnrollmentWaitlisted), 2)
}

func TestWaitlistQueueRejectsQueuedIdentity(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestWaitlist()
	scope := models.EventScope("evt-1")

	_, err := queue.Enqueue(ctx, scope, models.Identity{UserID: "u-1", Email: "a@example.com"})
	require.NoError(t, err)

	_, err = queue.Enqueue(ctx, scope, models.Identity{Email: "A@EXAMPLE.COM"})
	require.Error(t, err)
	assert.True(t, IsAlreadyQueued(err))
	assert.ErrorIs(t, err, appErrors.ErrDuplicate)

	_, err = queue.Enqueue(ctx, scope, models.Identity{UserID: "u-1", Email: "other@example.com"})
	assert.True(t, IsAlreadyQueued(err))

	other := models.EventScope("evt-2")
	_, err = queue.Enqueue(ctx, other, models.Identity{UserID: "u-1"})
	assert.NoError(t, err, "queues are independent per scope")
}

func TestWaitlistQueueRemoveRenumbers(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestWaitlist()
	scope := models.SessionScope("evt-1", "ses-1")

	var ids []string
	for i := 0; i < 4; i++ {
		entry, err := queue.Enqueue(ctx, scope, models.Identity{Email: fmt.Sprintf("p%d@example.com", i)})
		require.NoError(t, err)
		ids = append(ids, entry.ID)
	}

	_, err := queue.Remove(ctx, ids[1])
	require.NoError(t, err)

	entries, err := queue.List(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, positions(entries))
	assert.Equal(t, "p2@example.com", entries[1].Email)

	_, err = queue.Remove(ctx, ids[1])
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestWaitlistQueueProcessNotifiesLowestPositionsOnce(t *testing.T) {
	ctx := context.Background()
	queue, rec := newTestWaitlist()
	scope := models.EventScope("evt-1")
	for i := 0; i < 3; i++ {
		_, err := queue.Enqueue(ctx, scope, models.Identity{Email: fmt.Sprintf("p%d@example.com", i)})
		require.NoError(t, err)
	}

	notified, err := queue.ProcessWaitlist(ctx, scope, 2)
	require.NoError(t, err)
	require.Len(t, notified, 2)
	assert.Equal(t, []int{1, 2}, positions(notified))

	notified, err = queue.ProcessWaitlist(ctx, scope, 5)
	require.NoError(t, err)
	require.Len(t, notified, 1)
	assert.Equal(t, "p2@example.com", notified[0].Email)

	entries, err := queue.List(ctx, scope)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "notified entries stay queued")
	assert.Len(t, rec.ofType(models.EventWaitlistEntryNotified), 3)

	notified, err = queue.ProcessWaitlist(ctx, scope, 0)
	require.NoError(t, err)
	assert.Empty(t, notified)
}

func TestWaitlistQueueGetPositionAndList(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestWaitlist()
	scope := models.EventScope("evt-1")

	entries, err := queue.List(ctx, scope)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	_, err = queue.GetPosition(ctx, scope, models.Identity{Email: "nobody@example.com"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = queue.Enqueue(ctx, scope, models.Identity{Email: "a@example.com"})
	require.NoError(t, err)
	entry, err := queue.GetPosition(ctx, scope, models.Identity{Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Position)

	require.NoError(t, queue.RemoveIdentity(ctx, scope, models.Identity{Email: "a@example.com"}))
	require.NoError(t, queue.RemoveIdentity(ctx, scope, models.Identity{Email: "a@example.com"}))
}

func TestWaitlistQueueConcurrentEnqueueIsGapFree(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestWaitlist()
	scope := models.EventScope("evt-1")

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := queue.Enqueue(ctx, scope, models.Identity{Email: fmt.Sprintf("p%d@example.com", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := queue.List(ctx, scope)
	require.NoError(t, err)
	require.Len(t, entries, 64)
	for i, entry := range entries {
		assert.Equal(t, i+1, entry.Position)
	}
}

func TestWaitlistQueueValidation(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestWaitlist()

	_, err := queue.Enqueue(ctx, models.Scope{}, models.Identity{Email: "a@example.com"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = queue.Enqueue(ctx, models.EventScope("evt-1"), models.Identity{Name: "No Contact"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestWaitlistQueueRemoveFromSessions(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestWaitlist()
	ada := models.Identity{Email: "ada@example.com"}
	bob := models.Identity{Email: "bob@example.com"}

	_, err := q.Enqueue(ctx, models.EventScope("e1"), ada)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.SessionScope("e1", "s1"), ada)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.SessionScope("e1", "s1"), bob)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.SessionScope("e1", "s2"), ada)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.SessionScope("e2", "s9"), ada)
	require.NoError(t, err)

	removed, err := q.RemoveFromSessions(ctx, "e1", models.Identity{Email: "ADA@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	s1, err := q.List(ctx, models.SessionScope("e1", "s1"))
	require.NoError(t, err)
	require.Len(t, s1, 1)
	assert.Equal(t, "bob@example.com", s1[0].Email)
	assert.Equal(t, 1, s1[0].Position)
	event, err := q.List(ctx, models.EventScope("e1"))
	require.NoError(t, err)
	assert.Len(t, event, 1, "event scope is left alone")
	other, err := q.List(ctx, models.SessionScope("e2", "s9"))
	require.NoError(t, err)
	assert.Len(t, other, 1, "other events are left alone")

	removed, err = q.RemoveFromSessions(ctx, "e1", models.Identity{})
	require.NoError(t, err)
	assert.Zero(t, removed)
}
