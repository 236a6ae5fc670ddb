package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/event-registration-api/internal/models"
	"github.com/noah-isme/event-registration-api/internal/repository"
	appErrors "github.com/noah-isme/event-registration-api/pkg/errors"
	"github.com/noah-isme/event-registration-api/pkg/eventbus"
	"github.com/noah-isme/event-registration-api/pkg/export"
)

// SessionRegisterResult reports a session admission or waitlist placement.
type SessionRegisterResult struct {
	Success             bool                        `json:"success"`
	SessionRegistration *models.SessionRegistration `json:"session_registration,omitempty"`
	Waitlisted          bool                        `json:"waitlisted"`
	Position            int                         `json:"position,omitempty"`
	AlreadyQueued       bool                        `json:"already_queued,omitempty"`
	Message             string                      `json:"message,omitempty"`
}

// BulkSessionItem is the outcome for one session of a bulk request.
type BulkSessionItem struct {
	SessionID  string `json:"session_id"`
	Success    bool   `json:"success"`
	Waitlisted bool   `json:"waitlisted"`
	Position   int    `json:"position,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Message    string `json:"message,omitempty"`
}

// BulkSessionResult aggregates a bulk session registration.
type BulkSessionResult struct {
	Items      []BulkSessionItem `json:"items"`
	Registered int               `json:"registered"`
	Waitlisted int               `json:"waitlisted"`
	Failed     int               `json:"failed"`
}

// RosterExport is a rendered session roster.
type RosterExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SessionRegistrationDeps bundles the collaborators of SessionRegistrationService.
type SessionRegistrationDeps struct {
	Registrations registrationStore
	Seats         sessionSeatStore
	Events        eventReader
	Ledger        *CapacityLedger
	Waitlist      *WaitlistQueue
	Conflicts     *ConflictDetector
	Bus           *eventbus.Bus
	Logger        *zap.Logger
}

// SessionRegistrationService manages seats in the sessions of an event.
type SessionRegistrationService struct {
	registrations registrationStore
	seats         sessionSeatStore
	events        eventReader
	ledger        *CapacityLedger
	waitlist      *WaitlistQueue
	conflicts     *ConflictDetector
	bus           *eventbus.Bus
	logger        *zap.Logger
	bulkLimit     int
	now           func() time.Time
}

// NewSessionRegistrationService constructs SessionRegistrationService.
func NewSessionRegistrationService(deps SessionRegistrationDeps, bulkLimit int) *SessionRegistrationService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Conflicts == nil {
		deps.Conflicts = NewConflictDetector()
	}
	if bulkLimit <= 0 {
		bulkLimit = 50
	}
	return &SessionRegistrationService{
		registrations: deps.Registrations,
		seats:         deps.Seats,
		events:        deps.Events,
		ledger:        deps.Ledger,
		waitlist:      deps.Waitlist,
		conflicts:     deps.Conflicts,
		bus:           deps.Bus,
		logger:        deps.Logger,
		bulkLimit:     bulkLimit,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *SessionRegistrationService) loadPair(ctx context.Context, sessionID, registrationID string) (*models.Session, *models.Registration, error) {
	session, err := s.events.FindSession(ctx, sessionID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, nil, persistenceFailure(ctx, s.logger, "session.find", err, zap.String("session_id", sessionID))
	}
	registration, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, nil, persistenceFailure(ctx, s.logger, "registration.find", err, zap.String("registration_id", registrationID))
	}
	return session, registration, nil
}

// RegisterForSession admits an active registration into one session of its
// event, or queues it when the session is full. Sessions overlapping one
// already held are refused.
func (s *SessionRegistrationService) RegisterForSession(ctx context.Context, sessionID, registrationID string, actor models.Actor) (*SessionRegisterResult, error) {
	if sessionID == "" || registrationID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session and registration ids are required")
	}
	session, registration, err := s.loadPair(ctx, sessionID, registrationID)
	if err != nil {
		return nil, err
	}
	if !registration.Active() {
		return nil, appErrors.Clone(appErrors.ErrEligibility, "registration is not active")
	}
	if registration.EventID != session.EventID {
		return nil, appErrors.Clone(appErrors.ErrEligibility, "session belongs to another event")
	}
	if !authorized(*registration, actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage this registration")
	}

	if _, err := s.seats.Find(ctx, session.ID, registration.ID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "already registered for this session")
	} else if !isNotFound(err) {
		return nil, persistenceFailure(ctx, s.logger, "session_registration.find", err, zap.String("session_id", session.ID))
	}

	held, err := s.seats.ListSessionsByRegistration(ctx, registration.ID)
	if err != nil {
		return nil, persistenceFailure(ctx, s.logger, "session_registration.list", err, zap.String("registration_id", registration.ID))
	}
	if err := s.checkConflicts(*session, held); err != nil {
		return nil, err
	}

	scope := models.SessionScope(session.EventID, session.ID)
	admitted, err := admitProvisioned(ctx, s.ledger, scope, 1, func() (int, error) {
		return session.Capacity, nil
	})
	if err != nil {
		return nil, err
	}
	identity := registration.Identity()
	if !admitted {
		return s.placeOnWaitlist(ctx, scope, identity)
	}

	seat := &models.SessionRegistration{
		SessionID:        session.ID,
		RegistrationID:   registration.ID,
		AttendanceStatus: models.AttendanceRegistered,
		CreatedAt:        s.now(),
	}
	if err := s.seats.Create(ctx, seat); err != nil {
		if releaseErr := s.ledger.Release(ctx, scope, 1); releaseErr != nil {
			s.logger.Error("failed to release session capacity after aborted seat", zap.String("scope", scope.Key()), zap.Error(releaseErr))
		}
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrDuplicate, "already registered for this session")
		}
		return nil, persistenceFailure(ctx, s.logger, "session_registration.create", err, zap.String("session_id", session.ID))
	}
	if err := s.waitlist.RemoveIdentity(ctx, scope, identity); err != nil {
		s.logger.Warn("failed to clear session waitlist entry after admission", zap.String("session_id", session.ID), zap.Error(err))
	}
	s.bus.Publish(models.EventSessionRegistrationAdmitted, models.SessionRegistrationAdmitted{SessionRegistration: *seat, Session: *session})
	s.logger.Info("session seat taken", zap.String("session_id", session.ID), zap.String("registration_id", registration.ID))
	return &SessionRegisterResult{Success: true, SessionRegistration: seat}, nil
}

func (s *SessionRegistrationService) checkConflicts(candidate models.Session, held []models.Session) error {
	existing := make([]models.Interval, 0, len(held))
	for _, session := range held {
		existing = append(existing, session.Interval())
	}
	result := s.conflicts.HasConflict(candidate.Interval(), existing)
	if result.Degraded {
		s.logger.Warn("schedule conflict check skipped sessions without a usable time range",
			zap.String("session_id", candidate.ID),
			zap.Strings("skipped", result.Skipped),
		)
	}
	if !result.Conflict {
		return nil
	}
	details := map[string]interface{}{"conflicting_session_id": result.First.OwnerID}
	if result.First.Label != "" {
		details["conflicting_session_title"] = result.First.Label
	}
	return appErrors.WithDetails(appErrors.ErrScheduleConflict, fmt.Sprintf("overlaps with session %q", conflictLabel(*result.First)), details)
}

func conflictLabel(interval models.Interval) string {
	if interval.Label != "" {
		return interval.Label
	}
	return interval.OwnerID
}

func (s *SessionRegistrationService) placeOnWaitlist(ctx context.Context, scope models.Scope, identity models.Identity) (*SessionRegisterResult, error) {
	entry, err := s.waitlist.Enqueue(ctx, scope, identity)
	if err != nil {
		if !IsAlreadyQueued(err) {
			return nil, err
		}
		result := &SessionRegisterResult{Waitlisted: true, AlreadyQueued: true, Message: "already on waitlist"}
		if existing, posErr := s.waitlist.GetPosition(ctx, scope, identity); posErr == nil {
			result.Position = existing.Position
		}
		return result, nil
	}
	return &SessionRegisterResult{Waitlisted: true, Position: entry.Position, Message: "session is full, added to waitlist"}, nil
}

// CancelSessionRegistration releases a seat and offers it to the session waitlist.
func (s *SessionRegistrationService) CancelSessionRegistration(ctx context.Context, sessionID, registrationID string, actor models.Actor) error {
	session, registration, err := s.loadPair(ctx, sessionID, registrationID)
	if err != nil {
		return err
	}
	if !authorized(*registration, actor) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage this registration")
	}
	seat, err := s.seats.Delete(ctx, session.ID, registration.ID)
	if err != nil {
		if isNotFound(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "session registration not found")
		}
		return persistenceFailure(ctx, s.logger, "session_registration.delete", err, zap.String("session_id", session.ID))
	}

	scope := models.SessionScope(session.EventID, session.ID)
	if err := s.ledger.Release(ctx, scope, 1); err != nil {
		s.logger.Error("failed to release session capacity", zap.String("scope", scope.Key()), zap.Error(err))
	}
	if _, err := s.waitlist.ProcessWaitlist(ctx, scope, 1); err != nil {
		s.logger.Error("failed to process session waitlist", zap.String("scope", scope.Key()), zap.Error(err))
	}
	s.bus.Publish(models.EventSessionRegistrationCancelled, models.SessionRegistrationCancelled{SessionRegistration: *seat, Session: *session})
	return nil
}

// BulkRegisterSessions registers one registration into several sessions. Each
// session is attempted independently and in order; repeated ids are ignored.
func (s *SessionRegistrationService) BulkRegisterSessions(ctx context.Context, registrationID string, sessionIDs []string, actor models.Actor) (*BulkSessionResult, error) {
	if len(sessionIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one session id is required")
	}
	if len(sessionIDs) > s.bulkLimit {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d sessions per request", s.bulkLimit))
	}

	result := &BulkSessionResult{Items: make([]BulkSessionItem, 0, len(sessionIDs))}
	seen := make(map[string]struct{}, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		if _, dup := seen[sessionID]; dup {
			continue
		}
		seen[sessionID] = struct{}{}

		item := BulkSessionItem{SessionID: sessionID}
		outcome, err := s.RegisterForSession(ctx, sessionID, registrationID, actor)
		switch {
		case err != nil:
			appErr := appErrors.FromError(err)
			item.ErrorKind = appErr.Code
			item.Message = appErr.Message
			result.Failed++
		case outcome.Waitlisted:
			item.Waitlisted = true
			item.Position = outcome.Position
			item.Message = outcome.Message
			result.Waitlisted++
		default:
			item.Success = true
			result.Registered++
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// MarkAttendance records check-in state for a seat.
func (s *SessionRegistrationService) MarkAttendance(ctx context.Context, sessionID, registrationID string, status models.AttendanceStatus) error {
	if !status.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown attendance status")
	}
	if err := s.seats.UpdateAttendance(ctx, sessionID, registrationID, status); err != nil {
		if isNotFound(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "session registration not found")
		}
		return persistenceFailure(ctx, s.logger, "session_registration.attendance", err, zap.String("session_id", sessionID))
	}
	return nil
}

// ListSessions returns the sessions held by a registration ordered by start time.
func (s *SessionRegistrationService) ListSessions(ctx context.Context, registrationID string, actor models.Actor) ([]models.Session, error) {
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
	sessions, err := s.seats.ListSessionsByRegistration(ctx, registration.ID)
	if err != nil {
		return nil, persistenceFailure(ctx, s.logger, "session_registration.list", err, zap.String("registration_id", registrationID))
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return sessions, nil
}

// ExportSessionRoster renders the participants of a session as CSV or PDF.
func (s *SessionRegistrationService) ExportSessionRoster(ctx context.Context, sessionID, format string) (*RosterExport, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	renderer, err := export.NewRenderer(parsed)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	session, err := s.events.FindSession(ctx, sessionID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, persistenceFailure(ctx, s.logger, "session.find", err, zap.String("session_id", sessionID))
	}
	roster, err := s.seats.ListRoster(ctx, session.ID)
	if err != nil {
		return nil, persistenceFailure(ctx, s.logger, "session_registration.roster", err, zap.String("session_id", sessionID))
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("Roster: %s", session.Title),
		Headers: []string{"Name", "Email", "Attendance", "Registered At"},
		Rows:    make([]map[string]string, 0, len(roster)),
	}
	for _, row := range roster {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Name":          row.FullName,
			"Email":         row.Email,
			"Attendance":    string(row.AttendanceStatus),
			"Registered At": row.CreatedAt.Format(time.RFC3339),
		})
	}
	data, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	return &RosterExport{
		Filename:    fmt.Sprintf("session-%s-roster.%s", session.ID, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

// SessionScope resolves the capacity and waitlist scope of a session.
func (s *SessionRegistrationService) SessionScope(ctx context.Context, sessionID string) (models.Scope, error) {
	session, err := s.events.FindSession(ctx, sessionID)
	if err != nil {
		if isNotFound(err) {
			return models.Scope{}, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return models.Scope{}, persistenceFailure(ctx, s.logger, "session.find", err, zap.String("session_id", sessionID))
	}
	return models.SessionScope(session.EventID, session.ID), nil
}
