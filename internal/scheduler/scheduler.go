// Package scheduler runs the daily reminder job: once per calendar day, at
// a fixed local hour, every participant of tomorrow's events receives one
// reminder. Delivery failures are per-recipient and never abort the batch.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/avolkov/eventbot/internal/model"
	"github.com/avolkov/eventbot/internal/notify"
)

// EventSource lists events for an exact calendar date.
type EventSource interface {
	ListOnDate(ctx context.Context, day time.Time) ([]model.Event, error)
}

// ParticipantSource lists an event's registered participants.
type ParticipantSource interface {
	ListByEvent(ctx context.Context, eventID string) ([]model.Participant, error)
}

// RunClaimer atomically claims the reminder run for one calendar day.
type RunClaimer interface {
	ClaimRun(ctx context.Context, day time.Time) (bool, error)
}

// Result summarises one reminder run.
type Result struct {
	Claimed bool
	Sent    int
	Failed  int
}

// Scheduler owns the daily reminder loop.
type Scheduler struct {
	events      EventSource
	parts       ParticipantSource
	runs        RunClaimer
	gateway     notify.Gateway
	hour        int
	sendTimeout time.Duration
	now         func() time.Time
}

// New constructs a Scheduler firing at the given local hour.
func New(events EventSource, parts ParticipantSource, runs RunClaimer, gw notify.Gateway, hour int, sendTimeout time.Duration) *Scheduler {
	return &Scheduler{
		events:      events,
		parts:       parts,
		runs:        runs,
		gateway:     gw,
		hour:        hour,
		sendTimeout: sendTimeout,
		now:         time.Now,
	}
}

// Run blocks until ctx is cancelled, firing once at each day's trigger
// time. A process started after today's trigger simply waits for
// tomorrow's: missed days are skipped, never back-filled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := s.now()
		timer := time.NewTimer(s.nextFire(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		res, err := s.RunOnce(ctx)
		switch {
		case err != nil:
			log.Printf("reminder run failed: %v", err)
		case !res.Claimed:
			log.Printf("reminder run already claimed for today, skipping")
		default:
			log.Printf("reminder run done: sent=%d failed=%d", res.Sent, res.Failed)
		}
	}
}

// nextFire returns the next trigger instant strictly after now.
func (s *Scheduler) nextFire(now time.Time) time.Time {
	fire := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, now.Location())
	if !fire.After(now) {
		fire = fire.AddDate(0, 0, 1)
	}
	return fire
}

// RunOnce performs a single reminder run for the current day. The per-day
// claim is taken before any send, so a restart near the trigger time cannot
// deliver the same batch twice. Each event's participant list is read once
// and iterated as a fixed snapshot; a cancellation arriving mid-run is
// tolerated (that participant may still get a reminder).
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	claimed, err := s.runs.ClaimRun(ctx, today)
	if err != nil {
		return Result{}, fmt.Errorf("claim run: %w", err)
	}
	if !claimed {
		return Result{}, nil
	}

	tomorrow := today.AddDate(0, 0, 1)
	events, err := s.events.ListOnDate(ctx, tomorrow)
	if err != nil {
		return Result{Claimed: true}, fmt.Errorf("list events: %w", err)
	}

	res := Result{Claimed: true}
	for _, ev := range events {
		parts, err := s.parts.ListByEvent(ctx, ev.ID)
		if err != nil {
			// One unreadable roster must not starve other events.
			log.Printf("list participants for event %s: %v", ev.ID, err)
			continue
		}
		text := reminderText(ev)
		for _, p := range parts {
			if err := s.send(ctx, p.TgID, text); err != nil {
				log.Printf("reminder to %d for event %s: %v", p.TgID, ev.ID, err)
				res.Failed++
				continue
			}
			res.Sent++
		}
	}
	return res, nil
}

// send delivers one reminder with a bounded per-call timeout so a single
// unresponsive recipient cannot stall the batch.
func (s *Scheduler) send(ctx context.Context, recipient int64, text string) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	return s.gateway.Send(sendCtx, recipient, text)
}

func reminderText(ev model.Event) string {
	return fmt.Sprintf(
		"Reminder: %s takes place tomorrow, %s. See you there!",
		ev.Title, ev.Date.Format("02.01.2006"),
	)
}
