// Package repository implements all database queries for the sign-up bot.
// It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avolkov/eventbot/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyRegistered is returned when the same user registers twice
// for the same event.
var ErrAlreadyRegistered = errors.New("already registered for this event")

// ErrNotOwner is returned when a cancellation targets a registration
// that belongs to a different user.
var ErrNotOwner = errors.New("registration belongs to another user")

// UserRepository handles persistence for users.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert creates the user on first contact and returns the stored record
// on every subsequent call. The tg_id unique constraint makes concurrent
// first contacts collapse to a single row.
func (r *UserRepository) Upsert(ctx context.Context, tgID int64, fullName string) (*model.User, error) {
	u := &model.User{
		ID:        uuid.New().String(),
		TgID:      tgID,
		FullName:  fullName,
		CreatedAt: time.Now().UTC(),
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (id, tg_id, full_name, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tg_id) DO UPDATE SET tg_id = EXCLUDED.tg_id
		 RETURNING id, tg_id, full_name, created_at`,
		u.ID, u.TgID, u.FullName, u.CreatedAt,
	).Scan(&u.ID, &u.TgID, &u.FullName, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

// GetByTgID returns the user with the given telegram ID or ErrNotFound.
func (r *UserRepository) GetByTgID(ctx context.Context, tgID int64) (*model.User, error) {
	var u model.User
	err := r.db.QueryRow(ctx,
		`SELECT id, tg_id, full_name, created_at FROM users WHERE tg_id = $1`,
		tgID,
	).Scan(&u.ID, &u.TgID, &u.FullName, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event and returns it with a generated UUID.
func (r *EventRepository) Create(ctx context.Context, in model.CreateEventInput) (*model.Event, error) {
	ev := &model.Event{
		ID:          uuid.New().String(),
		Title:       in.Title,
		Topic:       in.Topic,
		Description: in.Description,
		Date:        in.Date,
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO events (id, title, topic, description, date)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.Title, ev.Topic, ev.Description, ev.Date,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return ev, nil
}

// GetByID returns a single event or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var ev model.Event
	err := r.db.QueryRow(ctx,
		`SELECT id, title, topic, description, date FROM events WHERE id = $1`,
		id,
	).Scan(&ev.ID, &ev.Title, &ev.Topic, &ev.Description, &ev.Date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &ev, nil
}

// ListUpcoming returns events dated on or after from, ascending by date.
func (r *EventRepository) ListUpcoming(ctx context.Context, from time.Time) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, title, topic, description, date
		 FROM events
		 WHERE date >= $1::date
		 ORDER BY date ASC`,
		from,
	)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	return scanEvents(rows)
}

// ListAll returns every event, ascending by date. Used by the admin menus.
func (r *EventRepository) ListAll(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, title, topic, description, date FROM events ORDER BY date ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return scanEvents(rows)
}

// ListOnDate returns events whose date equals day exactly.
func (r *EventRepository) ListOnDate(ctx context.Context, day time.Time) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, title, topic, description, date
		 FROM events
		 WHERE date = $1::date
		 ORDER BY date ASC`,
		day,
	)
	if err != nil {
		return nil, fmt.Errorf("list events on date: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
	defer rows.Close()
	var events []model.Event
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.ID, &ev.Title, &ev.Topic, &ev.Description, &ev.Date); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Delete removes the event. The registrations cascade is declared on the
// schema, so parent and children disappear in one atomic statement.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RegistrationRepository handles persistence for registrations.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Insert registers a user for an event inside a single transaction.
//
// The event existence check and the insert see the same snapshot, and the
// uniqueness invariant itself is the UNIQUE (user_id, event_id) constraint:
// when two concurrent inserts race, exactly one returns a row and the other
// hits ON CONFLICT DO NOTHING, which we report as ErrAlreadyRegistered.
// No row lock is needed.
func (r *RegistrationRepository) Insert(ctx context.Context, userID, eventID string) (*model.Registration, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check event: %w", err)
	}
	if !exists {
		err = ErrNotFound
		return nil, err
	}

	reg := &model.Registration{
		ID:           uuid.New().String(),
		UserID:       userID,
		EventID:      eventID,
		RegisteredAt: time.Now().UTC(),
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO registrations (id, user_id, event_id, registered_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, event_id) DO NOTHING
		 RETURNING id`,
		reg.ID, reg.UserID, reg.EventID, reg.RegisteredAt,
	).Scan(&reg.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrAlreadyRegistered
			return nil, err
		}
		return nil, fmt.Errorf("insert registration: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return reg, nil
}

// Exists reports whether the user is registered for the event.
func (r *RegistrationRepository) Exists(ctx context.Context, userID, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM registrations WHERE user_id = $1 AND event_id = $2)`,
		userID, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	return exists, nil
}

// DeleteOwned removes the registration only if it belongs to userID.
// Owner lookup and delete run in one transaction so a mismatch is reported
// as ErrNotOwner rather than silently deleting nothing.
func (r *RegistrationRepository) DeleteOwned(ctx context.Context, regID, userID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var owner string
	err = tx.QueryRow(ctx,
		`SELECT user_id FROM registrations WHERE id = $1`, regID,
	).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNotFound
			return err
		}
		return fmt.Errorf("get registration: %w", err)
	}
	if owner != userID {
		err = ErrNotOwner
		return err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, regID); err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// DeleteByUser removes every registration owned by the user and returns
// how many were removed. Zero is a normal outcome, not an error.
func (r *RegistrationRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM registrations WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete registrations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListByUser returns the user's registrations joined with their events,
// ascending by event date.
func (r *RegistrationRepository) ListByUser(ctx context.Context, userID string) ([]model.RegistrationWithEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT r.id, r.user_id, r.event_id, r.registered_at, e.title, e.date
		 FROM registrations r
		 JOIN events e ON e.id = r.event_id
		 WHERE r.user_id = $1
		 ORDER BY e.date ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.RegistrationWithEvent
	for rows.Next() {
		var reg model.RegistrationWithEvent
		if err := rows.Scan(&reg.ID, &reg.UserID, &reg.EventID, &reg.RegisteredAt, &reg.EventTitle, &reg.EventDate); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// ListByEvent returns the event's participants, ascending by registration
// time. This is a point-in-time snapshot: the reminder run iterates over
// the returned slice, so a cancellation arriving mid-run cannot disturb it.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Participant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT r.id, u.tg_id, u.full_name, r.registered_at
		 FROM registrations r
		 JOIN users u ON u.id = r.user_id
		 WHERE r.event_id = $1
		 ORDER BY r.registered_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var parts []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.RegistrationID, &p.TgID, &p.FullName, &p.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// ReminderRepository persists the once-per-day reminder run claim.
type ReminderRepository struct {
	db *pgxpool.Pool
}

// NewReminderRepository constructs a ReminderRepository.
func NewReminderRepository(db *pgxpool.Pool) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// ClaimRun records that the reminder job ran on day. It returns false when
// the day was already claimed, which is how a restart near the trigger time
// is kept from sending the same batch twice.
func (r *ReminderRepository) ClaimRun(ctx context.Context, day time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO reminder_runs (run_date, started_at)
		 VALUES ($1::date, $2)
		 ON CONFLICT (run_date) DO NOTHING`,
		day, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("claim reminder run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
