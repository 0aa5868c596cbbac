package workflow

import (
	"errors"
	"testing"
)

func TestParseEventSpec(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want EventSpec
		err  error
	}{
		{
			name: "well formed",
			in:   "Meetup;Tech;Discuss;2024-12-15",
			want: EventSpec{Title: "Meetup", Topic: "Tech", Description: "Discuss", RawDate: "2024-12-15"},
		},
		{
			name: "trims whitespace",
			in:   " Meetup ; Tech ;  Discuss ; 2024-12-15 ",
			want: EventSpec{Title: "Meetup", Topic: "Tech", Description: "Discuss", RawDate: "2024-12-15"},
		},
		{
			name: "too few fields",
			in:   "OnlyTwo;Fields",
			err:  ErrBadFieldCount,
		},
		{
			name: "too many fields",
			in:   "A;B;C;D;E",
			err:  ErrBadFieldCount,
		},
		{
			name: "no separator",
			in:   "just a chat message",
			err:  ErrBadFieldCount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEventSpec(tt.in)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("err = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != tt.want {
				t.Fatalf("spec = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCreateFlowStates(t *testing.T) {
	c := NewController()
	const admin int64 = 1

	if state, _ := c.StateOf(admin); state != Idle {
		t.Fatalf("initial state = %v, want Idle", state)
	}

	c.BeginCreate(admin)
	if state, _ := c.StateOf(admin); state != AwaitingEventSpec {
		t.Fatalf("state = %v, want AwaitingEventSpec", state)
	}

	c.Reset(admin)
	if state, _ := c.StateOf(admin); state != Idle {
		t.Fatalf("state after reset = %v, want Idle", state)
	}
}

func TestSessionsAreKeyedBySender(t *testing.T) {
	c := NewController()
	c.BeginCreate(1)

	if state, _ := c.StateOf(2); state != Idle {
		t.Fatalf("other admin state = %v, want Idle", state)
	}
}

func TestDeleteConfirmation(t *testing.T) {
	c := NewController()
	const admin int64 = 1

	c.BeginDelete(admin, "ev-1")
	if state, eventID := c.StateOf(admin); state != AwaitingConfirmation || eventID != "ev-1" {
		t.Fatalf("state = %v/%q, want AwaitingConfirmation/ev-1", state, eventID)
	}

	if !c.TakePendingDelete(admin, "ev-1") {
		t.Fatal("matching confirmation rejected")
	}
	// Confirmation is single-use.
	if c.TakePendingDelete(admin, "ev-1") {
		t.Fatal("second confirmation accepted")
	}
}

func TestDeleteConfirmationWrongTarget(t *testing.T) {
	c := NewController()
	const admin int64 = 1

	c.BeginDelete(admin, "ev-1")
	if c.TakePendingDelete(admin, "ev-2") {
		t.Fatal("confirmation for a different event accepted")
	}
	// The mismatch dropped the session entirely.
	if state, _ := c.StateOf(admin); state != Idle {
		t.Fatalf("state = %v, want Idle", state)
	}
}

func TestConfirmationWithoutPendingDelete(t *testing.T) {
	c := NewController()
	if c.TakePendingDelete(1, "ev-1") {
		t.Fatal("confirmation accepted with no pending deletion")
	}
}
