package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/event-registration-api/internal/models"
	appErrors "github.com/noah-isme/event-registration-api/pkg/errors"
)

func TestCacheRepositoryRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	repo := NewCacheRepository(client, "evreg:", nil)
	ctx := context.Background()

	var event models.Event
	assert.ErrorIs(t, repo.Get(ctx, "event:e1", &event), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "event:e1", models.Event{ID: "e1", Title: "GopherCon"}, time.Minute))
	assert.True(t, srv.Exists("evreg:event:e1"))
	require.NoError(t, repo.Get(ctx, "event:e1", &event))
	assert.Equal(t, "GopherCon", event.Title)

	require.NoError(t, repo.Set(ctx, "session:s1", models.Session{ID: "s1"}, time.Minute))
	require.NoError(t, repo.Delete(ctx, "event:e1", "session:s1"))
	assert.False(t, srv.Exists("evreg:event:e1"))
	assert.False(t, srv.Exists("evreg:session:s1"))
}

func TestCacheRepositoryUndecodableEntryIsMiss(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	repo := NewCacheRepository(client, "evreg", nil)

	require.NoError(t, srv.Set("evreg:event:e1", "{not json"))
	var event models.Event
	assert.ErrorIs(t, repo.Get(context.Background(), "event:e1", &event), appErrors.ErrCacheMiss)
	assert.False(t, srv.Exists("evreg:event:e1"))
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "evreg", nil)
	var event models.Event
	assert.ErrorIs(t, repo.Get(context.Background(), "event:e1", &event), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "event:e1", event, time.Minute))
}
