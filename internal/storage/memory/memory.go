// Package memory provides an in-memory store with the same semantics as
// the postgres repositories, including the (user, event) uniqueness
// invariant and the event-deletion cascade. It backs tests that exercise
// the engine, router, and scheduler without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avolkov/eventbot/internal/model"
	"github.com/avolkov/eventbot/internal/repository"
	"github.com/google/uuid"
)

// Store holds all state behind one mutex; every operation is atomic, which
// mirrors what the schema constraints guarantee in postgres.
type Store struct {
	mu       sync.Mutex
	users    map[string]model.User // by store ID
	byTg     map[int64]string
	events   map[string]model.Event
	regs     map[string]model.Registration
	regOrder []string          // insertion order == registration time order
	pairs    map[string]string // userID+"|"+eventID -> registration ID
	runs     map[string]bool   // claimed run dates

	now func() time.Time
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		users:  make(map[string]model.User),
		byTg:   make(map[int64]string),
		events: make(map[string]model.Event),
		regs:   make(map[string]model.Registration),
		pairs:  make(map[string]string),
		runs:   make(map[string]bool),
		now:    time.Now,
	}
}

// SetClock overrides the store clock, for deterministic timestamps.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Upsert implements service.UserStore.
func (s *Store) Upsert(_ context.Context, tgID int64, fullName string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byTg[tgID]; ok {
		u := s.users[id]
		return &u, nil
	}
	u := model.User{
		ID:        uuid.New().String(),
		TgID:      tgID,
		FullName:  fullName,
		CreatedAt: s.now().UTC(),
	}
	s.users[u.ID] = u
	s.byTg[tgID] = u.ID
	return &u, nil
}

// Create implements service.EventStore.
func (s *Store) Create(_ context.Context, in model.CreateEventInput) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := model.Event{
		ID:          uuid.New().String(),
		Title:       in.Title,
		Topic:       in.Topic,
		Description: in.Description,
		Date:        in.Date,
	}
	s.events[ev.ID] = ev
	return &ev, nil
}

// GetByID implements service.EventStore.
func (s *Store) GetByID(_ context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ev, nil
}

// ListUpcoming implements service.EventStore.
func (s *Store) ListUpcoming(_ context.Context, from time.Time) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []model.Event
	for _, ev := range s.events {
		if !ev.Date.Before(from) {
			events = append(events, ev)
		}
	}
	sortEvents(events)
	return events, nil
}

// ListAll implements service.EventStore.
func (s *Store) ListAll(_ context.Context) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]model.Event, 0, len(s.events))
	for _, ev := range s.events {
		events = append(events, ev)
	}
	sortEvents(events)
	return events, nil
}

// ListOnDate implements scheduler.EventSource.
func (s *Store) ListOnDate(_ context.Context, day time.Time) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []model.Event
	for _, ev := range s.events {
		if sameDate(ev.Date, day) {
			events = append(events, ev)
		}
	}
	sortEvents(events)
	return events, nil
}

// Delete implements service.EventStore. Registrations cascade atomically,
// exactly as the FK does in postgres.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.events, id)
	for regID, reg := range s.regs {
		if reg.EventID == id {
			s.removeRegLocked(regID, reg)
		}
	}
	return nil
}

// Insert implements service.RegistrationStore. The existence check, the
// uniqueness check, and the insert happen under one lock, so concurrent
// calls for the same pair produce exactly one registration.
func (s *Store) Insert(_ context.Context, userID, eventID string) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; !ok {
		return nil, repository.ErrNotFound
	}
	key := userID + "|" + eventID
	if _, ok := s.pairs[key]; ok {
		return nil, repository.ErrAlreadyRegistered
	}
	reg := model.Registration{
		ID:           uuid.New().String(),
		UserID:       userID,
		EventID:      eventID,
		RegisteredAt: s.now().UTC(),
	}
	s.regs[reg.ID] = reg
	s.regOrder = append(s.regOrder, reg.ID)
	s.pairs[key] = reg.ID
	return &reg, nil
}

// Exists implements service.RegistrationStore.
func (s *Store) Exists(_ context.Context, userID, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pairs[userID+"|"+eventID]
	return ok, nil
}

// DeleteOwned implements service.RegistrationStore.
func (s *Store) DeleteOwned(_ context.Context, regID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[regID]
	if !ok {
		return repository.ErrNotFound
	}
	if reg.UserID != userID {
		return repository.ErrNotOwner
	}
	s.removeRegLocked(regID, reg)
	return nil
}

// DeleteByUser implements service.RegistrationStore.
func (s *Store) DeleteByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for regID, reg := range s.regs {
		if reg.UserID == userID {
			s.removeRegLocked(regID, reg)
			n++
		}
	}
	return n, nil
}

// ListByUser implements service.RegistrationStore.
func (s *Store) ListByUser(_ context.Context, userID string) ([]model.RegistrationWithEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var regs []model.RegistrationWithEvent
	for _, regID := range s.regOrder {
		reg := s.regs[regID]
		if reg.UserID != userID {
			continue
		}
		ev := s.events[reg.EventID]
		regs = append(regs, model.RegistrationWithEvent{
			Registration: reg,
			EventTitle:   ev.Title,
			EventDate:    ev.Date,
		})
	}
	sort.SliceStable(regs, func(i, j int) bool {
		return regs[i].EventDate.Before(regs[j].EventDate)
	})
	return regs, nil
}

// ListByEvent implements service.RegistrationStore and
// scheduler.ParticipantSource. Rows come back in registration order.
func (s *Store) ListByEvent(_ context.Context, eventID string) ([]model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var parts []model.Participant
	for _, regID := range s.regOrder {
		reg := s.regs[regID]
		if reg.EventID != eventID {
			continue
		}
		u := s.users[reg.UserID]
		parts = append(parts, model.Participant{
			RegistrationID: reg.ID,
			TgID:           u.TgID,
			FullName:       u.FullName,
			RegisteredAt:   reg.RegisteredAt,
		})
	}
	return parts, nil
}

// ClaimRun implements scheduler.RunClaimer.
func (s *Store) ClaimRun(_ context.Context, day time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := day.Format("2006-01-02")
	if s.runs[key] {
		return false, nil
	}
	s.runs[key] = true
	return true, nil
}

func (s *Store) removeRegLocked(regID string, reg model.Registration) {
	delete(s.regs, regID)
	delete(s.pairs, reg.UserID+"|"+reg.EventID)
	for i, id := range s.regOrder {
		if id == regID {
			s.regOrder = append(s.regOrder[:i], s.regOrder[i+1:]...)
			break
		}
	}
}

func sortEvents(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
