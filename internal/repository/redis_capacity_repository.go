package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/event-registration-api/internal/models"
)

// Counters live in a hash with total and used fields. The scripts run
// atomically on the server so check and increment cannot interleave.
var (
	admitScript = redis.NewScript(`
local total = redis.call('HGET', KEYS[1], 'total')
if not total then
  return -1
end
total = tonumber(total)
local used = tonumber(redis.call('HGET', KEYS[1], 'used') or '0')
local n = tonumber(ARGV[1])
if total >= 0 and used + n > total then
  return 0
end
redis.call('HSET', KEYS[1], 'used', used + n, 'updated_at', ARGV[2])
return 1
`)

	releaseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local used = tonumber(redis.call('HGET', KEYS[1], 'used') or '0') - tonumber(ARGV[1])
if used < 0 then
  used = 0
end
redis.call('HSET', KEYS[1], 'used', used, 'updated_at', ARGV[2])
return used
`)
)

// RedisCapacityRepository keeps admission counters in Redis for deployments
// that share capacity across several API replicas.
type RedisCapacityRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisCapacityRepository constructs the repository.
func NewRedisCapacityRepository(client *redis.Client, prefix string) *RedisCapacityRepository {
	return &RedisCapacityRepository{client: client, prefix: prefix}
}

func (r *RedisCapacityRepository) key(scopeKey string) string {
	if r.prefix == "" {
		return "capacity:" + scopeKey
	}
	return r.prefix + ":capacity:" + scopeKey
}

// Get returns the counter for a scope.
func (r *RedisCapacityRepository) Get(ctx context.Context, scopeKey string) (*models.CapacityCounter, error) {
	values, err := r.client.HGetAll(ctx, r.key(scopeKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get capacity: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	counter := &models.CapacityCounter{ScopeKey: scopeKey}
	if counter.Total, err = strconv.Atoi(values["total"]); err != nil {
		return nil, fmt.Errorf("decode capacity total: %w", err)
	}
	if raw, ok := values["used"]; ok {
		if counter.Used, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("decode capacity used: %w", err)
		}
	}
	if raw, ok := values["updated_at"]; ok {
		if unix, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
			counter.UpdatedAt = time.Unix(unix, 0).UTC()
		}
	}
	return counter, nil
}

// Admit reserves n units if they fit.
func (r *RedisCapacityRepository) Admit(ctx context.Context, scopeKey string, n int) (bool, error) {
	result, err := admitScript.Run(ctx, r.client, []string{r.key(scopeKey)}, n, time.Now().Unix()).Int()
	if err != nil {
		return false, fmt.Errorf("redis admit capacity: %w", err)
	}
	switch result {
	case -1:
		return false, ErrNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

// Release returns n units, never dropping below zero.
func (r *RedisCapacityRepository) Release(ctx context.Context, scopeKey string, n int) error {
	result, err := releaseScript.Run(ctx, r.client, []string{r.key(scopeKey)}, n, time.Now().Unix()).Int()
	if err != nil {
		return fmt.Errorf("redis release capacity: %w", err)
	}
	if result == -1 {
		return ErrNotFound
	}
	return nil
}

// Upsert creates the counter or changes its total, keeping used untouched.
func (r *RedisCapacityRepository) Upsert(ctx context.Context, scopeKey string, total int) error {
	key := r.key(scopeKey)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "total", total, "updated_at", time.Now().Unix())
	pipe.HSetNX(ctx, key, "used", 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis upsert capacity: %w", err)
	}
	return nil
}
