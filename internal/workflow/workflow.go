// Package workflow tracks per-admin multi-turn sessions. Two admin
// operations span more than one transport turn: entering a new event spec
// and confirming an event deletion. The controller keys sessions by the
// admin's telegram ID so structured parsing only engages while the matching
// flow is active; free text outside a flow is never treated as an event
// spec, no matter what characters it contains.
package workflow

import (
	"errors"
	"strings"
	"sync"
)

// State is the position of one admin session.
type State int

// Session states.
const (
	Idle State = iota
	AwaitingEventSpec
	AwaitingConfirmation
)

// ErrBadFieldCount is returned when an event spec does not split into
// exactly four semicolon-delimited fields.
var ErrBadFieldCount = errors.New("event spec needs 4 fields separated by ';'")

// EventSpec is the raw parsed create-event input. Date validation belongs
// to the engine; the spec carries the field as entered.
type EventSpec struct {
	Title       string
	Topic       string
	Description string
	RawDate     string
}

// ParseEventSpec splits "title;topic;description;YYYY-MM-DD" into its
// fields, trimming surrounding whitespace.
func ParseEventSpec(text string) (EventSpec, error) {
	parts := strings.Split(text, ";")
	if len(parts) != 4 {
		return EventSpec{}, ErrBadFieldCount
	}
	return EventSpec{
		Title:       strings.TrimSpace(parts[0]),
		Topic:       strings.TrimSpace(parts[1]),
		Description: strings.TrimSpace(parts[2]),
		RawDate:     strings.TrimSpace(parts[3]),
	}, nil
}

type session struct {
	state   State
	eventID string
}

// Controller is the per-admin session store. Sessions are ephemeral and
// in-memory; a restart simply drops admins back to Idle.
type Controller struct {
	mu       sync.Mutex
	sessions map[int64]session
}

// NewController constructs an empty Controller.
func NewController() *Controller {
	return &Controller{sessions: make(map[int64]session)}
}

// BeginCreate moves the admin to AwaitingEventSpec: their next free-text
// message is parsed as an event spec.
func (c *Controller) BeginCreate(adminID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[adminID] = session{state: AwaitingEventSpec}
}

// BeginDelete moves the admin to AwaitingConfirmation for the given event.
func (c *Controller) BeginDelete(adminID int64, eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[adminID] = session{state: AwaitingConfirmation, eventID: eventID}
}

// StateOf returns the admin's current state and, for AwaitingConfirmation,
// the pending event ID.
func (c *Controller) StateOf(adminID int64) (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sessions[adminID]
	return s.state, s.eventID
}

// TakePendingDelete pops the pending deletion if the admin is awaiting
// confirmation for that exact event. Any other state, or a token for a
// different event, resets the session without authorizing anything.
func (c *Controller) TakePendingDelete(adminID int64, eventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sessions[adminID]
	delete(c.sessions, adminID)
	return s.state == AwaitingConfirmation && s.eventID == eventID
}

// Reset returns the admin to Idle. Called on flow completion, on any
// mid-flow failure, and on explicit cancellation.
func (c *Controller) Reset(adminID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, adminID)
}
