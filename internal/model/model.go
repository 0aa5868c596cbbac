// Package model defines the core domain types for the event sign-up bot.
package model

import "time"

// User is a participant known to the bot. One record per telegram ID,
// created lazily on first contact and never deleted.
type User struct {
	ID        string    `json:"id"`
	TgID      int64     `json:"tg_id"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is a scheduled event participants can sign up for.
// Date carries date-only semantics; the time-of-day portion is always zero.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Topic       string    `json:"topic"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
}

// Registration links one user to one event. At most one per (user, event)
// pair; the store enforces this with a unique constraint.
type Registration struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	EventID      string    `json:"event_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// RegistrationWithEvent is the read model for a user's own sign-ups.
type RegistrationWithEvent struct {
	Registration
	EventTitle string    `json:"event_title"`
	EventDate  time.Time `json:"event_date"`
}

// Participant is one roster row for an event, ordered by registration time.
type Participant struct {
	RegistrationID string    `json:"registration_id"`
	TgID           int64     `json:"tg_id"`
	FullName       string    `json:"full_name"`
	RegisteredAt   time.Time `json:"registered_at"`
}

// CreateEventInput is the validated payload for creating a new event.
type CreateEventInput struct {
	Title       string
	Topic       string
	Description string
	Date        time.Time
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
