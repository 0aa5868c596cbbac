// Package service implements the registration engine: admin gating,
// validation, and orchestration between the transport layer and the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avolkov/eventbot/internal/config"
	"github.com/avolkov/eventbot/internal/model"
)

// ErrForbidden is returned when a non-admin invokes an admin-only operation.
var ErrForbidden = errors.New("access denied")

// ErrValidation is returned for malformed event-creation input.
var ErrValidation = errors.New("invalid input")

// DateFormat is the only accepted calendar date layout for event creation.
const DateFormat = "2006-01-02"

// UserStore persists users.
type UserStore interface {
	Upsert(ctx context.Context, tgID int64, fullName string) (*model.User, error)
}

// EventStore persists events.
type EventStore interface {
	Create(ctx context.Context, in model.CreateEventInput) (*model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	ListUpcoming(ctx context.Context, from time.Time) ([]model.Event, error)
	ListAll(ctx context.Context) ([]model.Event, error)
	Delete(ctx context.Context, id string) error
}

// RegistrationStore persists registrations.
type RegistrationStore interface {
	Insert(ctx context.Context, userID, eventID string) (*model.Registration, error)
	Exists(ctx context.Context, userID, eventID string) (bool, error)
	DeleteOwned(ctx context.Context, regID, userID string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]model.RegistrationWithEvent, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Participant, error)
}

// Engine enforces the registration invariants over the store. It holds no
// cached state: every operation reads current data, and the uniqueness and
// cascade invariants are delegated to store constraints.
type Engine struct {
	users  UserStore
	events EventStore
	regs   RegistrationStore
	admins config.AdminSet
}

// NewEngine constructs an Engine with its dependencies.
func NewEngine(users UserStore, events EventStore, regs RegistrationStore, admins config.AdminSet) *Engine {
	return &Engine{users: users, events: events, regs: regs, admins: admins}
}

// IsAdmin reports whether the telegram ID is in the static allow-list.
// The set is immutable, so the answer cannot go stale mid-process.
func (e *Engine) IsAdmin(tgID int64) bool {
	return e.admins.Contains(tgID)
}

// EnsureUser creates the user on first contact; subsequent calls return the
// existing record.
func (e *Engine) EnsureUser(ctx context.Context, tgID int64, fullName string) (*model.User, error) {
	return e.users.Upsert(ctx, tgID, fullName)
}

// ListUpcomingEvents returns events dated on or after from, ascending by
// date. An empty result is a nil slice, not an error.
func (e *Engine) ListUpcomingEvents(ctx context.Context, from time.Time) ([]model.Event, error) {
	return e.events.ListUpcoming(ctx, from)
}

// GetEvent returns a single event or repository.ErrNotFound.
func (e *Engine) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return e.events.GetByID(ctx, id)
}

// IsRegistered reports whether the user already holds a registration for
// the event.
func (e *Engine) IsRegistered(ctx context.Context, userID, eventID string) (bool, error) {
	return e.regs.Exists(ctx, userID, eventID)
}

// Register creates a registration. Event existence, uniqueness, and the
// insert are resolved against one store snapshot; a duplicate surfaces as
// repository.ErrAlreadyRegistered, a missing event as repository.ErrNotFound.
func (e *Engine) Register(ctx context.Context, userID, eventID string) (*model.Registration, error) {
	return e.regs.Insert(ctx, userID, eventID)
}

// CancelOne deletes the registration only if it belongs to the requesting
// user. An ownership mismatch is repository.ErrNotOwner, never a silent
// no-op: it signals a forged or stale request.
func (e *Engine) CancelOne(ctx context.Context, regID, userID string) error {
	return e.regs.DeleteOwned(ctx, regID, userID)
}

// CancelAll deletes every registration owned by the user and returns the
// count. Zero means the user had none; that is not an error.
func (e *Engine) CancelAll(ctx context.Context, userID string) (int64, error) {
	return e.regs.DeleteByUser(ctx, userID)
}

// ListUserRegistrations returns the user's registrations with their events,
// ascending by event date.
func (e *Engine) ListUserRegistrations(ctx context.Context, userID string) ([]model.RegistrationWithEvent, error) {
	return e.regs.ListByUser(ctx, userID)
}

// CreateEvent validates and creates an event. Admin-only.
// The date is accepted as a strict YYYY-MM-DD string; admins may backdate.
func (e *Engine) CreateEvent(ctx context.Context, requester int64, title, topic, description, rawDate string) (*model.Event, error) {
	if !e.IsAdmin(requester) {
		return nil, ErrForbidden
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	date, err := time.Parse(DateFormat, strings.TrimSpace(rawDate))
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	return e.events.Create(ctx, model.CreateEventInput{
		Title:       title,
		Topic:       strings.TrimSpace(topic),
		Description: strings.TrimSpace(description),
		Date:        date,
	})
}

// DeleteEvent removes the event and, through the store's cascade, every
// registration referencing it, atomically. Admin-only. Confirmation is the
// workflow layer's job; once invoked, deletion is unconditional.
func (e *Engine) DeleteEvent(ctx context.Context, requester int64, eventID string) error {
	if !e.IsAdmin(requester) {
		return ErrForbidden
	}
	return e.events.Delete(ctx, eventID)
}

// ListEventParticipants returns the event's roster ordered by registration
// time. Admin-only.
func (e *Engine) ListEventParticipants(ctx context.Context, requester int64, eventID string) ([]model.Participant, error) {
	if !e.IsAdmin(requester) {
		return nil, ErrForbidden
	}
	if _, err := e.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return e.regs.ListByEvent(ctx, eventID)
}

// ListAllEvents returns every event for the admin menus. Admin-only.
func (e *Engine) ListAllEvents(ctx context.Context, requester int64) ([]model.Event, error) {
	if !e.IsAdmin(requester) {
		return nil, ErrForbidden
	}
	return e.events.ListAll(ctx)
}
