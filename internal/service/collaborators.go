package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/event-registration-api/internal/models"
	"github.com/noah-isme/event-registration-api/internal/repository"
	appErrors "github.com/noah-isme/event-registration-api/pkg/errors"
)

// EventEligibility decides whether an event accepts registrations.
type EventEligibility interface {
	IsOpen(ctx context.Context, eventID string) (bool, string, error)
}

// Pricing quotes the amount due for a registration.
type Pricing interface {
	Quote(ctx context.Context, eventID string, ticket models.TicketDetails, quantity int) (int64, error)
}

// UserDirectory resolves participant accounts.
type UserDirectory interface {
	EnsureAccount(ctx context.Context, identity models.Identity) (string, error)
	LinkEnrollment(ctx context.Context, registrationID, accountID string) error
}

// Notifier delivers participant-facing messages.
type Notifier interface {
	NotifyPending(ctx context.Context, registration models.Registration) error
	NotifyConfirmed(ctx context.Context, registration models.Registration) error
	NotifyCancelled(ctx context.Context, registration models.Registration) error
	NotifyWaitlisted(ctx context.Context, entry models.WaitlistEntry) error
	NotifySpotAvailable(ctx context.Context, entry models.WaitlistEntry) error
}

type eventReader interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
	FindSession(ctx context.Context, id string) (*models.Session, error)
	FindTicketType(ctx context.Context, eventID, id string) (*models.TicketType, error)
}

// CatalogEligibility checks publication status and the registration window.
type CatalogEligibility struct {
	events eventReader
	now    func() time.Time
}

// NewCatalogEligibility constructs CatalogEligibility.
func NewCatalogEligibility(events eventReader) *CatalogEligibility {
	return &CatalogEligibility{events: events, now: func() time.Time { return time.Now().UTC() }}
}

// IsOpen implements EventEligibility.
func (e *CatalogEligibility) IsOpen(ctx context.Context, eventID string) (bool, string, error) {
	event, err := e.events.FindByID(ctx, eventID)
	if err != nil {
		return false, "", err
	}
	now := e.now()
	switch {
	case event.Status != models.EventStatusPublished:
		return false, "event is not published", nil
	case event.RegistrationOpensAt != nil && now.Before(*event.RegistrationOpensAt):
		return false, "registration has not opened yet", nil
	case event.RegistrationClosesAt != nil && !now.Before(*event.RegistrationClosesAt):
		return false, "registration is closed", nil
	case !event.StartsAt.IsZero() && !now.Before(event.StartsAt):
		return false, "event has already started", nil
	}
	return true, "", nil
}

// CatalogPricing prices registrations from the ticket type or the event base price.
type CatalogPricing struct {
	events eventReader
}

// NewCatalogPricing constructs CatalogPricing.
func NewCatalogPricing(events eventReader) *CatalogPricing {
	return &CatalogPricing{events: events}
}

// Quote implements Pricing.
func (p *CatalogPricing) Quote(ctx context.Context, eventID string, ticket models.TicketDetails, quantity int) (int64, error) {
	if strings.TrimSpace(ticket.PromoCode) != "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "promo code not recognised")
	}
	if ticket.TicketTypeID != "" {
		tt, err := p.events.FindTicketType(ctx, eventID, ticket.TicketTypeID)
		if err != nil {
			if isNotFound(err) {
				return 0, appErrors.Clone(appErrors.ErrValidation, "unknown ticket type")
			}
			return 0, err
		}
		if !tt.Active {
			return 0, appErrors.Clone(appErrors.ErrValidation, "ticket type is not on sale")
		}
		return tt.PriceCents * int64(quantity), nil
	}
	event, err := p.events.FindByID(ctx, eventID)
	if err != nil {
		return 0, err
	}
	return event.BasePriceCents * int64(quantity), nil
}

type accountStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type registrationLinker interface {
	LinkUser(ctx context.Context, id, userID string) error
}

// AccountDirectory finds or provisions guest accounts for participants.
type AccountDirectory struct {
	users         accountStore
	registrations registrationLinker
}

// NewAccountDirectory constructs AccountDirectory.
func NewAccountDirectory(users accountStore, registrations registrationLinker) *AccountDirectory {
	return &AccountDirectory{users: users, registrations: registrations}
}

// EnsureAccount implements UserDirectory.
func (d *AccountDirectory) EnsureAccount(ctx context.Context, identity models.Identity) (string, error) {
	if identity.UserID != "" {
		return identity.UserID, nil
	}
	if user, err := d.users.FindByEmail(ctx, identity.Email); err == nil {
		return user.ID, nil
	} else if !isNotFound(err) {
		return "", err
	}
	guest := &models.User{Email: identity.Email, FullName: identity.Name, Role: models.RoleParticipant, Guest: true}
	if err := d.users.Create(ctx, guest); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return "", err
		}
		existing, findErr := d.users.FindByEmail(ctx, identity.Email)
		if findErr != nil {
			return "", findErr
		}
		return existing.ID, nil
	}
	return guest.ID, nil
}

// LinkEnrollment implements UserDirectory.
func (d *AccountDirectory) LinkEnrollment(ctx context.Context, registrationID, accountID string) error {
	return d.registrations.LinkUser(ctx, registrationID, accountID)
}

// LogNotifier writes notifications to the log. Deployments replace it with a
// mail or push integration.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) registration(kind string, registration models.Registration) error {
	n.logger.Info("notification",
		zap.String("kind", kind),
		zap.String("registration_id", registration.ID),
		zap.String("event_id", registration.EventID),
		zap.String("email", registration.Email),
	)
	return nil
}

func (n *LogNotifier) entry(kind string, entry models.WaitlistEntry) error {
	n.logger.Info("notification",
		zap.String("kind", kind),
		zap.String("entry_id", entry.ID),
		zap.String("scope", entry.ScopeKey),
		zap.Int("position", entry.Position),
		zap.String("email", entry.Email),
	)
	return nil
}

// NotifyPending implements Notifier.
func (n *LogNotifier) NotifyPending(_ context.Context, registration models.Registration) error {
	return n.registration("pending", registration)
}

// NotifyConfirmed implements Notifier.
func (n *LogNotifier) NotifyConfirmed(_ context.Context, registration models.Registration) error {
	return n.registration("confirmed", registration)
}

// NotifyCancelled implements Notifier.
func (n *LogNotifier) NotifyCancelled(_ context.Context, registration models.Registration) error {
	return n.registration("cancelled", registration)
}

// NotifyWaitlisted implements Notifier.
func (n *LogNotifier) NotifyWaitlisted(_ context.Context, entry models.WaitlistEntry) error {
	return n.entry("waitlisted", entry)
}

// NotifySpotAvailable implements Notifier.
func (n *LogNotifier) NotifySpotAvailable(_ context.Context, entry models.WaitlistEntry) error {
	return n.entry("spot_available", entry)
}
