package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avolkov/eventbot/internal/config"
	"github.com/avolkov/eventbot/internal/model"
	"github.com/avolkov/eventbot/internal/repository"
	"github.com/avolkov/eventbot/internal/service"
	"github.com/avolkov/eventbot/internal/storage/memory"
)

const adminID int64 = 1

func newEngine() (*service.Engine, *memory.Store) {
	store := memory.New()
	engine := service.NewEngine(store, store, store, config.NewAdminSet([]int64{adminID}))
	return engine, store
}

func mustCreateEvent(t *testing.T, e *service.Engine, title, rawDate string) *model.Event {
	t.Helper()
	ev, err := e.CreateEvent(context.Background(), adminID, title, "Tech", "Details", rawDate)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return ev
}

func mustUser(t *testing.T, e *service.Engine, tgID int64, name string) *model.User {
	t.Helper()
	u, err := e.EnsureUser(context.Background(), tgID, name)
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	return u
}

func TestEnsureUserIdempotent(t *testing.T) {
	engine, _ := newEngine()

	first := mustUser(t, engine, 100, "Alice")
	second := mustUser(t, engine, 100, "Alice")
	if first.ID != second.ID {
		t.Fatalf("second EnsureUser returned ID %q, want %q", second.ID, first.ID)
	}
}

func TestRegisterTwiceReturnsAlreadyRegistered(t *testing.T) {
	engine, _ := newEngine()
	ev := mustCreateEvent(t, engine, "Meetup", "2030-06-01")
	u := mustUser(t, engine, 100, "Alice")

	if _, err := engine.Register(context.Background(), u.ID, ev.ID); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := engine.Register(context.Background(), u.ID, ev.ID)
	if !errors.Is(err, repository.ErrAlreadyRegistered) {
		t.Fatalf("second register err = %v, want ErrAlreadyRegistered", err)
	}

	parts, err := engine.ListEventParticipants(context.Background(), adminID, ev.ID)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("participants = %d, want 1", len(parts))
	}
}

func TestRegisterMissingEvent(t *testing.T) {
	engine, _ := newEngine()
	u := mustUser(t, engine, 100, "Alice")

	_, err := engine.Register(context.Background(), u.ID, "no-such-event")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("register err = %v, want ErrNotFound", err)
	}
}

func TestDeleteEventCascades(t *testing.T) {
	engine, store := newEngine()
	doomed := mustCreateEvent(t, engine, "Doomed", "2030-06-01")
	kept := mustCreateEvent(t, engine, "Kept", "2030-06-02")
	u := mustUser(t, engine, 100, "Alice")

	for _, ev := range []*model.Event{doomed, kept} {
		if _, err := engine.Register(context.Background(), u.ID, ev.ID); err != nil {
			t.Fatalf("register for %s: %v", ev.Title, err)
		}
	}

	if err := engine.DeleteEvent(context.Background(), adminID, doomed.ID); err != nil {
		t.Fatalf("delete event: %v", err)
	}
	if _, err := engine.GetEvent(context.Background(), doomed.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("get deleted event err = %v, want ErrNotFound", err)
	}

	regs, err := store.ListByUser(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("list registrations: %v", err)
	}
	if len(regs) != 1 || regs[0].EventID != kept.ID {
		t.Fatalf("surviving registrations = %+v, want one for %q", regs, kept.ID)
	}
}

func TestDeleteEventNotFound(t *testing.T) {
	engine, _ := newEngine()
	if err := engine.DeleteEvent(context.Background(), adminID, "nope"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("delete err = %v, want ErrNotFound", err)
	}
}

func TestCancelOneOwnership(t *testing.T) {
	engine, _ := newEngine()
	ev := mustCreateEvent(t, engine, "Meetup", "2030-06-01")
	owner := mustUser(t, engine, 100, "Alice")
	intruder := mustUser(t, engine, 200, "Mallory")

	reg, err := engine.Register(context.Background(), owner.ID, ev.ID)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := engine.CancelOne(context.Background(), reg.ID, intruder.ID); !errors.Is(err, repository.ErrNotOwner) {
		t.Fatalf("cancel by intruder err = %v, want ErrNotOwner", err)
	}
	registered, err := engine.IsRegistered(context.Background(), owner.ID, ev.ID)
	if err != nil {
		t.Fatalf("is registered: %v", err)
	}
	if !registered {
		t.Fatal("registration vanished after rejected cancellation")
	}

	if err := engine.CancelOne(context.Background(), reg.ID, owner.ID); err != nil {
		t.Fatalf("cancel by owner: %v", err)
	}
	if err := engine.CancelOne(context.Background(), reg.ID, owner.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("cancel again err = %v, want ErrNotFound", err)
	}
}

func TestCancelAll(t *testing.T) {
	engine, _ := newEngine()
	u := mustUser(t, engine, 100, "Alice")
	for _, date := range []string{"2030-06-01", "2030-06-02", "2030-06-03"} {
		ev := mustCreateEvent(t, engine, "Event "+date, date)
		if _, err := engine.Register(context.Background(), u.ID, ev.ID); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	n, err := engine.CancelAll(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("cancel all: %v", err)
	}
	if n != 3 {
		t.Fatalf("cancelled = %d, want 3", n)
	}

	regs, err := engine.ListUserRegistrations(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("list registrations: %v", err)
	}
	if len(regs) != 0 {
		t.Fatalf("registrations after cancel all = %d, want 0", len(regs))
	}

	n, err = engine.CancelAll(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("second cancel all: %v", err)
	}
	if n != 0 {
		t.Fatalf("second cancel all = %d, want 0", n)
	}
}

func TestListUpcomingEventsFiltersAndSorts(t *testing.T) {
	engine, _ := newEngine()
	mustCreateEvent(t, engine, "Past", "2020-01-01")
	mustCreateEvent(t, engine, "Later", "2030-07-01")
	mustCreateEvent(t, engine, "Sooner", "2030-06-01")

	today := time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC)
	events, err := engine.ListUpcomingEvents(context.Background(), today)
	if err != nil {
		t.Fatalf("list upcoming: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("upcoming = %d, want 2", len(events))
	}
	if events[0].Title != "Sooner" || events[1].Title != "Later" {
		t.Fatalf("order = [%s, %s], want [Sooner, Later]", events[0].Title, events[1].Title)
	}
	for _, ev := range events {
		if ev.Date.Before(today) {
			t.Fatalf("event %s dated %s is before today", ev.Title, ev.Date)
		}
	}
}

func TestCreateEventValidation(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		rawDate string
	}{
		{"empty title", "", "2024-12-15"},
		{"blank title", "   ", "2024-12-15"},
		{"wrong date layout", "Meetup", "15-12-2024"},
		{"nonsense date", "Meetup", "someday"},
		{"empty date", "Meetup", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, store := newEngine()
			_, err := engine.CreateEvent(context.Background(), adminID, tt.title, "Tech", "Discuss", tt.rawDate)
			if !errors.Is(err, service.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			events, err := store.ListAll(context.Background())
			if err != nil {
				t.Fatalf("list all: %v", err)
			}
			if len(events) != 0 {
				t.Fatalf("events created = %d, want 0", len(events))
			}
		})
	}
}

func TestCreateEventParsesDate(t *testing.T) {
	engine, _ := newEngine()
	ev := mustCreateEvent(t, engine, "Meetup", "2024-12-15")
	want := time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC)
	if !ev.Date.Equal(want) {
		t.Fatalf("date = %s, want %s", ev.Date, want)
	}
	if ev.Title != "Meetup" || ev.Topic != "Tech" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestAdminGating(t *testing.T) {
	engine, _ := newEngine()
	ev := mustCreateEvent(t, engine, "Meetup", "2030-06-01")
	const outsider int64 = 999

	if _, err := engine.CreateEvent(context.Background(), outsider, "X", "Y", "Z", "2030-06-01"); !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("CreateEvent err = %v, want ErrForbidden", err)
	}
	if err := engine.DeleteEvent(context.Background(), outsider, ev.ID); !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("DeleteEvent err = %v, want ErrForbidden", err)
	}
	if _, err := engine.ListEventParticipants(context.Background(), outsider, ev.ID); !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("ListEventParticipants err = %v, want ErrForbidden", err)
	}
	if _, err := engine.ListAllEvents(context.Background(), outsider); !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("ListAllEvents err = %v, want ErrForbidden", err)
	}

	// The event the outsider tried to delete is still there.
	if _, err := engine.GetEvent(context.Background(), ev.ID); err != nil {
		t.Fatalf("event gone after forbidden delete: %v", err)
	}
}

func TestConcurrentRegisterSingleWinner(t *testing.T) {
	engine, _ := newEngine()
	ev := mustCreateEvent(t, engine, "Meetup", "2030-06-01")
	u := mustUser(t, engine, 100, "Alice")

	const callers = 32
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Register(context.Background(), u.ID, ev.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, duplicates int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, repository.ErrAlreadyRegistered):
			duplicates++
		default:
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1", successes)
	}
	if duplicates != callers-1 {
		t.Fatalf("duplicates = %d, want %d", duplicates, callers-1)
	}

	parts, err := engine.ListEventParticipants(context.Background(), adminID, ev.ID)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("registration rows = %d, want 1", len(parts))
	}
}
