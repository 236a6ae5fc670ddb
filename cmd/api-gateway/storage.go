package main

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/event-registration-api/internal/models"
	"github.com/noah-isme/event-registration-api/internal/repository"
	"github.com/noah-isme/event-registration-api/internal/repository/memory"
	"github.com/noah-isme/event-registration-api/internal/service"
	"github.com/noah-isme/event-registration-api/pkg/config"
)

type eventStore interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
	FindSession(ctx context.Context, id string) (*models.Session, error)
	FindTicketType(ctx context.Context, eventID, id string) (*models.TicketType, error)
}

type registrationStore interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindActiveByIdentity(ctx context.Context, eventID string, identity models.Identity) (*models.Registration, error)
	Create(ctx context.Context, registration *models.Registration) error
	Cancel(ctx context.Context, id, actorID, reason string, at time.Time) (bool, error)
	LinkUser(ctx context.Context, id, userID string) error
}

type seatStore interface {
	Create(ctx context.Context, sr *models.SessionRegistration) error
	Find(ctx context.Context, sessionID, registrationID string) (*models.SessionRegistration, error)
	Delete(ctx context.Context, sessionID, registrationID string) (*models.SessionRegistration, error)
	ListSessionsByRegistration(ctx context.Context, registrationID string) ([]models.Session, error)
	UpdateAttendance(ctx context.Context, sessionID, registrationID string, status models.AttendanceStatus) error
	ListRoster(ctx context.Context, sessionID string) ([]models.SessionRosterRow, error)
}

type userStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type capacityStore interface {
	Get(ctx context.Context, scopeKey string) (*models.CapacityCounter, error)
	Admit(ctx context.Context, scopeKey string, n int) (bool, error)
	Release(ctx context.Context, scopeKey string, n int) error
	Upsert(ctx context.Context, scopeKey string, total int) error
}

type waitlistStore interface {
	Enqueue(ctx context.Context, entry *models.WaitlistEntry) error
	Remove(ctx context.Context, entryID string) (*models.WaitlistEntry, error)
	MarkNotified(ctx context.Context, scopeKey string, limit int) ([]models.WaitlistEntry, error)
	FindByIdentity(ctx context.Context, scopeKey string, identity models.Identity) (*models.WaitlistEntry, error)
	ListSessionEntries(ctx context.Context, eventID string, identity models.Identity) ([]models.WaitlistEntry, error)
	List(ctx context.Context, scopeKey string) ([]models.WaitlistEntry, error)
}

type storage struct {
	events        eventStore
	registrations registrationStore
	linker        registrationStore
	seats         seatStore
	users         userStore
	capacity      capacityStore
	waitlist      waitlistStore
	metadata      *service.CachedEventReader
}

// buildStorage selects the store implementations for the configured drivers.
// The event reader is wrapped with the metadata cache when it is enabled.
func buildStorage(cfg *config.Config, db *sqlx.DB, client *redis.Client, metrics *service.MetricsService, logr *zap.Logger) storage {
	var s storage
	var events eventStore

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		events = repository.NewEventRepository(db)
		s.registrations = repository.NewRegistrationRepository(db)
		s.seats = repository.NewSessionRegistrationRepository(db)
		s.users = repository.NewUserRepository(db)
		s.capacity = repository.NewCapacityRepository(db)
		s.waitlist = repository.NewWaitlistRepository(db)
	default:
		memEvents := memory.NewEventStore()
		registrations := memory.NewRegistrationStore()
		events = memEvents
		s.registrations = registrations
		s.seats = memory.NewSessionRegistrationStore(memEvents, registrations)
		s.users = memory.NewUserStore()
		s.capacity = memory.NewCapacityStore()
		s.waitlist = memory.NewWaitlistStore()
		logr.Warn("using in-memory storage, state is lost on restart")
	}
	s.linker = s.registrations

	if cfg.CapacityBackend == config.CapacityRedis && client != nil {
		s.capacity = repository.NewRedisCapacityRepository(client, cfg.Redis.KeyPrefix)
	}

	var cacheRepo service.CacheRepository
	if cfg.EventCache.Enabled && client != nil {
		cacheRepo = repository.NewCacheRepository(client, cfg.Redis.KeyPrefix, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.EventCache.TTL, logr, cfg.EventCache.Enabled)
	s.metadata = service.NewCachedEventReader(events, cacheSvc, cfg.EventCache.TTL)
	s.events = s.metadata

	return s
}
