package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/event-registration-api/internal/models"
	"github.com/noah-isme/event-registration-api/internal/repository"
	appErrors "github.com/noah-isme/event-registration-api/pkg/errors"
	"github.com/noah-isme/event-registration-api/pkg/eventbus"
)

type registrationStore interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindActiveByIdentity(ctx context.Context, eventID string, identity models.Identity) (*models.Registration, error)
	Create(ctx context.Context, registration *models.Registration) error
	Cancel(ctx context.Context, id, actorID, reason string, at time.Time) (bool, error)
}

type sessionSeatStore interface {
	Create(ctx context.Context, sr *models.SessionRegistration) error
	Find(ctx context.Context, sessionID, registrationID string) (*models.SessionRegistration, error)
	Delete(ctx context.Context, sessionID, registrationID string) (*models.SessionRegistration, error)
	ListSessionsByRegistration(ctx context.Context, registrationID string) ([]models.Session, error)
	UpdateAttendance(ctx context.Context, sessionID, registrationID string, status models.AttendanceStatus) error
	ListRoster(ctx context.Context, sessionID string) ([]models.SessionRosterRow, error)
}

// RegisterRequest describes an event registration request. EventID and
// UserID come from the route and the bearer token, never from the body.
type RegisterRequest struct {
	EventID  string               `json:"-" validate:"required"`
	UserID   string               `json:"-"`
	Email    string               `json:"email" validate:"required,email"`
	FullName string               `json:"full_name" validate:"required"`
	Quantity int                  `json:"quantity" validate:"min=1"`
	Ticket   models.TicketDetails `json:"ticket"`
}

// Identity returns the normalised participant identity of the request.
func (r RegisterRequest) Identity() models.Identity {
	return models.Identity{UserID: r.UserID, Email: r.Email, Name: r.FullName}.Normalize()
}

// RegisterResult reports either an admission or a waitlist placement.
// Being waitlisted is a normal outcome, not an error.
type RegisterResult struct {
	Success        bool                 `json:"success"`
	RegistrationID string               `json:"registration_id,omitempty"`
	AmountDueCents int64                `json:"amount_due_cents"`
	Waitlisted     bool                 `json:"waitlisted"`
	Position       int                  `json:"position,omitempty"`
	AlreadyQueued  bool                 `json:"already_queued,omitempty"`
	Message        string               `json:"message,omitempty"`
	Registration   *models.Registration `json:"registration,omitempty"`
}

// CancelEligibility is the answer of CanCancel.
type CancelEligibility struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// RegistrationConfig tunes RegistrationService.
type RegistrationConfig struct {
	MaxQuantity        int
	CancellationCutoff time.Duration
}

// RegistrationDeps bundles the collaborators of RegistrationService.
type RegistrationDeps struct {
	Registrations registrationStore
	Seats         sessionSeatStore
	Events        eventReader
	Ledger        *CapacityLedger
	Waitlist      *WaitlistQueue
	Eligibility   EventEligibility
	Pricing       Pricing
	Users         UserDirectory
	Bus           *eventbus.Bus
	Validator     *validator.Validate
	Logger        *zap.Logger
}

// RegistrationService orchestrates event-level enrollment and cancellation.
type RegistrationService struct {
	registrations registrationStore
	seats         sessionSeatStore
	events        eventReader
	ledger        *CapacityLedger
	waitlist      *WaitlistQueue
	eligibility   EventEligibility
	pricing       Pricing
	users         UserDirectory
	bus           *eventbus.Bus
	validator     *validator.Validate
	logger        *zap.Logger
	cfg           RegistrationConfig
	now           func() time.Time
}

// NewRegistrationService constructs RegistrationService.
func NewRegistrationService(deps RegistrationDeps, cfg RegistrationConfig) *RegistrationService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = 10
	}
	return &RegistrationService{
		registrations: deps.Registrations,
		seats:         deps.Seats,
		events:        deps.Events,
		ledger:        deps.Ledger,
		waitlist:      deps.Waitlist,
		eligibility:   deps.Eligibility,
		pricing:       deps.Pricing,
		users:         deps.Users,
		bus:           deps.Bus,
		validator:     deps.Validator,
		logger:        deps.Logger,
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Register admits the participant into the event or places them on its waitlist.
func (s *RegistrationService) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	if req.Quantity > s.cfg.MaxQuantity {
		return nil, appErrors.Clone(appErrors.ErrValidation, "quantity exceeds the per-registration limit")
	}
	identity := req.Identity()
	scope := models.EventScope(req.EventID)

	open, reason, err := s.eligibility.IsOpen(ctx, req.EventID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, persistenceFailure(ctx, s.logger, "registration.eligibility", err, zap.String("event_id", req.EventID))
	}
	if !open {
		return nil, appErrors.Clone(appErrors.ErrEligibility, reason)
	}

	if _, err := s.registrations.FindActiveByIdentity(ctx, req.EventID, identity); err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "already registered for this event")
	} else if !isNotFound(err) {
		return nil, persistenceFailure(ctx, s.logger, "registration.duplicate_check", err, zap.String("event_id", req.EventID))
	}

	admitted, err := s.admit(ctx, scope, req.Quantity)
	if err != nil {
		return nil, err
	}
	if !admitted {
		return s.placeOnWaitlist(ctx, scope, identity)
	}

	amount, err := s.pricing.Quote(ctx, req.EventID, req.Ticket, req.Quantity)
	if err != nil {
		s.compensate(ctx, scope, req.Quantity)
		if appErr, ok := passThrough(err); ok {
			return nil, appErr
		}
		return nil, persistenceFailure(ctx, s.logger, "registration.pricing", err, zap.String("event_id", req.EventID))
	}

	registration := &models.Registration{
		EventID:        req.EventID,
		Email:          identity.Email,
		FullName:       identity.Name,
		Quantity:       req.Quantity,
		AmountDueCents: amount,
		Status:         models.RegistrationStatusActive,
		PaymentStatus:  models.PaymentStatusPending,
		CreatedAt:      s.now(),
	}
	if amount == 0 {
		registration.PaymentStatus = models.PaymentStatusFree
	}
	if identity.UserID != "" {
		userID := identity.UserID
		registration.UserID = &userID
	}
	if req.Ticket.TicketTypeID != "" {
		ticketID := req.Ticket.TicketTypeID
		registration.TicketTypeID = &ticketID
	}
	if err := s.registrations.Create(ctx, registration); err != nil {
		s.compensate(ctx, scope, req.Quantity)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrDuplicate, "already registered for this event")
		}
		return nil, persistenceFailure(ctx, s.logger, "registration.create", err, zap.String("event_id", req.EventID))
	}

	if err := s.waitlist.RemoveIdentity(ctx, scope, identity); err != nil {
		s.logger.Warn("failed to clear waitlist entry after admission", zap.String("registration_id", registration.ID), zap.Error(err))
	}
	accountID := s.linkAccount(ctx, registration)
	s.bus.Publish(models.EventEnrollmentAdmitted, models.EnrollmentAdmitted{Registration: *registration, AccountID: accountID})

	s.logger.Info("registration admitted",
		zap.String("registration_id", registration.ID),
		zap.String("event_id", registration.EventID),
		zap.Int("quantity", registration.Quantity),
	)
	return &RegisterResult{
		Success:        true,
		RegistrationID: registration.ID,
		AmountDueCents: amount,
		Registration:   registration,
	}, nil
}

func (s *RegistrationService) admit(ctx context.Context, scope models.Scope, n int) (bool, error) {
	return admitProvisioned(ctx, s.ledger, scope, n, func() (int, error) {
		event, err := s.events.FindByID(ctx, scope.EventID)
		if err != nil {
			return 0, err
		}
		return event.Capacity, nil
	})
}

func (s *RegistrationService) placeOnWaitlist(ctx context.Context, scope models.Scope, identity models.Identity) (*RegisterResult, error) {
	entry, err := s.waitlist.Enqueue(ctx, scope, identity)
	if err != nil {
		if !IsAlreadyQueued(err) {
			return nil, err
		}
		result := &RegisterResult{Waitlisted: true, AlreadyQueued: true, Message: "already on waitlist"}
		if existing, posErr := s.waitlist.GetPosition(ctx, scope, identity); posErr == nil {
			result.Position = existing.Position
		}
		return result, nil
	}
	return &RegisterResult{Waitlisted: true, Position: entry.Position, Message: "event is full, added to waitlist"}, nil
}

func (s *RegistrationService) compensate(ctx context.Context, scope models.Scope, n int) {
	if err := s.ledger.Release(ctx, scope, n); err != nil {
		s.logger.Error("failed to release capacity after aborted registration", zap.String("scope", scope.Key()), zap.Int("units", n), zap.Error(err))
	}
}

// linkAccount resolves the participant account. Failures are logged and do
// not affect the registration.
func (s *RegistrationService) linkAccount(ctx context.Context, registration *models.Registration) string {
	if s.users == nil {
		return ""
	}
	accountID, err := s.users.EnsureAccount(ctx, registration.Identity())
	if err != nil {
		s.logger.Warn("failed to resolve participant account", zap.String("registration_id", registration.ID), zap.Error(err))
		return ""
	}
	if registration.UserID == nil && accountID != "" {
		if err := s.users.LinkEnrollment(ctx, registration.ID, accountID); err != nil {
			s.logger.Warn("failed to link registration to account", zap.String("registration_id", registration.ID), zap.Error(err))
		}
	}
	return accountID
}

// Cancel cancels an active registration, returns its capacity and offers the
// freed spots to the waitlist. Session seats held by the registration are
// released as well.
func (s *RegistrationService) Cancel(ctx context.Context, registrationID string, actor models.Actor, reason string) (*models.Registration, error) {
	registration, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, persistenceFailure(ctx, s.logger, "registration.find", err, zap.String("registration_id", registrationID))
	}
	if !registration.Active() {
		return nil, appErrors.Clone(appErrors.ErrAlreadyCancelled, "")
	}
	if !authorized(*registration, actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to cancel this registration")
	}

	at := s.now()
	changed, err := s.registrations.Cancel(ctx, registration.ID, actor.UserID, reason, at)
	if err != nil {
		return nil, persistenceFailure(ctx, s.logger, "registration.cancel", err, zap.String("registration_id", registrationID))
	}
	if !changed {
		return nil, appErrors.Clone(appErrors.ErrAlreadyCancelled, "")
	}
	registration.Status = models.RegistrationStatusCancelled
	registration.CancelledAt = &at
	if actor.UserID != "" {
		registration.CancelledBy = &actor.UserID
	}
	if reason != "" {
		registration.CancelReason = &reason
	}

	scope := models.EventScope(registration.EventID)
	if err := s.ledger.Release(ctx, scope, registration.Quantity); err != nil {
		s.logger.Error("failed to release event capacity", zap.String("registration_id", registration.ID), zap.Error(err))
	}
	if _, err := s.waitlist.ProcessWaitlist(ctx, scope, registration.Quantity); err != nil {
		s.logger.Error("failed to process event waitlist", zap.String("scope", scope.Key()), zap.Error(err))
	}
	if _, err := s.waitlist.RemoveFromSessions(ctx, registration.EventID, registration.Identity()); err != nil {
		s.logger.Error("failed to clear session waitlists of cancelled registration", zap.String("registration_id", registration.ID), zap.Error(err))
	}
	s.releaseSessionSeats(ctx, *registration)

	s.bus.Publish(models.EventEnrollmentCancelled, models.EnrollmentCancelled{Registration: *registration})
	s.logger.Info("registration cancelled", zap.String("registration_id", registration.ID), zap.String("actor", actor.UserID))
	return registration, nil
}

func (s *RegistrationService) releaseSessionSeats(ctx context.Context, registration models.Registration) {
	if s.seats == nil {
		return
	}
	sessions, err := s.seats.ListSessionsByRegistration(ctx, registration.ID)
	if err != nil {
		s.logger.Error("failed to list session seats of cancelled registration", zap.String("registration_id", registration.ID), zap.Error(err))
		return
	}
	for _, session := range sessions {
		seat, err := s.seats.Delete(ctx, session.ID, registration.ID)
		if err != nil {
			if !isNotFound(err) {
				s.logger.Error("failed to delete session seat", zap.String("session_id", session.ID), zap.Error(err))
			}
			continue
		}
		scope := models.SessionScope(session.EventID, session.ID)
		if err := s.ledger.Release(ctx, scope, 1); err != nil {
			s.logger.Error("failed to release session capacity", zap.String("scope", scope.Key()), zap.Error(err))
		}
		if _, err := s.waitlist.ProcessWaitlist(ctx, scope, 1); err != nil {
			s.logger.Error("failed to process session waitlist", zap.String("scope", scope.Key()), zap.Error(err))
		}
		s.bus.Publish(models.EventSessionRegistrationCancelled, models.SessionRegistrationCancelled{SessionRegistration: *seat, Session: session})
	}
}

// CanCancel reports whether the registration may still be cancelled. It never mutates state.
func (s *RegistrationService) CanCancel(ctx context.Context, registrationID string) (*CancelEligibility, error) {
	registration, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, persistenceFailure(ctx, s.logger, "registration.find", err, zap.String("registration_id", registrationID))
	}
	if !registration.Active() {
		return &CancelEligibility{Reason: "registration already cancelled"}, nil
	}
	event, err := s.events.FindByID(ctx, registration.EventID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, persistenceFailure(ctx, s.logger, "registration.event", err, zap.String("event_id", registration.EventID))
	}

	now := s.now()
	if !event.StartsAt.IsZero() && !now.Before(event.StartsAt) {
		return &CancelEligibility{Reason: "event has already started"}, nil
	}
	deadline := event.CancellationDeadline
	if deadline == nil && s.cfg.CancellationCutoff > 0 && !event.StartsAt.IsZero() {
		cutoff := event.StartsAt.Add(-s.cfg.CancellationCutoff)
		deadline = &cutoff
	}
	if deadline != nil && now.After(*deadline) {
		return &CancelEligibility{Reason: "cancellation deadline has passed"}, nil
	}
	return &CancelEligibility{Allowed: true}, nil
}

// GetRegistration returns a registration visible to the actor.
func (s *RegistrationService) GetRegistration(ctx context.Context, registrationID string, actor models.Actor) (*models.Registration, error) {
	registration, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, persistenceFailure(ctx, s.logger, "registration.find", err, zap.String("registration_id", registrationID))
	}
	if !authorized(*registration, actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}
	return registration, nil
}

func authorized(registration models.Registration, actor models.Actor) bool {
	if actor.Admin {
		return true
	}
	if actor.UserID == "" && actor.Email == "" {
		return false
	}
	return registration.Identity().Matches(actor.Identity())
}

// admitProvisioned admits into scope, creating the counter from catalogue
// capacity when the scope has none yet.
func admitProvisioned(ctx context.Context, ledger *CapacityLedger, scope models.Scope, n int, capacity func() (int, error)) (bool, error) {
	admitted, err := ledger.TryAdmit(ctx, scope, n)
	if err == nil || !errors.Is(err, appErrors.ErrNotFound) {
		return admitted, err
	}
	total, err := capacity()
	if err != nil {
		if isNotFound(err) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "scope not found")
		}
		return false, persistenceFailure(ctx, ledger.logger, "capacity.provision", err, zap.String("scope", scope.Key()))
	}
	if err := ledger.Configure(ctx, scope, total); err != nil {
		return false, err
	}
	return ledger.TryAdmit(ctx, scope, n)
}
