package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avolkov/eventbot/internal/model"
	"github.com/avolkov/eventbot/internal/notify"
	"github.com/avolkov/eventbot/internal/storage/memory"
)

type fakeGateway struct {
	mu      sync.Mutex
	sent    []int64
	failFor map[int64]bool
}

func (g *fakeGateway) Send(_ context.Context, recipient int64, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failFor[recipient] {
		return errors.New("blocked by recipient")
	}
	g.sent = append(g.sent, recipient)
	return nil
}

func (g *fakeGateway) delivered() map[int64]bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	got := make(map[int64]bool, len(g.sent))
	for _, id := range g.sent {
		got[id] = true
	}
	return got
}

var _ notify.Gateway = (*fakeGateway)(nil)

// testNow is inside the 2030-06-01 trigger window; tomorrow is 2030-06-02.
var testNow = time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC)

func newScheduler(t *testing.T, gw notify.Gateway) (*Scheduler, *memory.Store) {
	t.Helper()
	store := memory.New()
	s := New(store, store, store, gw, 9, time.Second)
	s.now = func() time.Time { return testNow }
	return s, store
}

func seedEvent(t *testing.T, store *memory.Store, title string, date time.Time, participants ...int64) *model.Event {
	t.Helper()
	ev, err := store.Create(context.Background(), model.CreateEventInput{Title: title, Date: date})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	for _, tgID := range participants {
		u, err := store.Upsert(context.Background(), tgID, "User")
		if err != nil {
			t.Fatalf("upsert user: %v", err)
		}
		if _, err := store.Insert(context.Background(), u.ID, ev.ID); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	return ev
}

func TestRunOnceSendsOnlyForTomorrow(t *testing.T) {
	gw := &fakeGateway{}
	s, store := newScheduler(t, gw)

	tomorrow := testNow.AddDate(0, 0, 1)
	seedEvent(t, store, "Tomorrow", tomorrow, 100, 200)
	seedEvent(t, store, "Later", testNow.AddDate(0, 0, 7), 300)
	seedEvent(t, store, "Today", testNow, 400)

	res, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !res.Claimed {
		t.Fatal("run was not claimed")
	}
	if res.Sent != 2 || res.Failed != 0 {
		t.Fatalf("sent/failed = %d/%d, want 2/0", res.Sent, res.Failed)
	}

	got := gw.delivered()
	if !got[100] || !got[200] {
		t.Fatalf("delivered = %v, want 100 and 200", got)
	}
	if got[300] || got[400] {
		t.Fatalf("delivered = %v, recipients of non-qualifying events were notified", got)
	}
}

func TestRunOnceIsolatesRecipientFailures(t *testing.T) {
	gw := &fakeGateway{failFor: map[int64]bool{200: true}}
	s, store := newScheduler(t, gw)

	tomorrow := testNow.AddDate(0, 0, 1)
	seedEvent(t, store, "First", tomorrow, 100, 200, 300)
	seedEvent(t, store, "Second", tomorrow, 400)

	res, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if res.Sent != 3 || res.Failed != 1 {
		t.Fatalf("sent/failed = %d/%d, want 3/1", res.Sent, res.Failed)
	}

	got := gw.delivered()
	for _, id := range []int64{100, 300, 400} {
		if !got[id] {
			t.Fatalf("recipient %d missed their reminder after an unrelated failure", id)
		}
	}
	if got[200] {
		t.Fatal("failing recipient counted as delivered")
	}
}

func TestRunOnceFiresAtMostOncePerDay(t *testing.T) {
	gw := &fakeGateway{}
	s, store := newScheduler(t, gw)
	seedEvent(t, store, "Tomorrow", testNow.AddDate(0, 0, 1), 100)

	first, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if !first.Claimed || first.Sent != 1 {
		t.Fatalf("first run = %+v, want claimed with 1 sent", first)
	}

	// A restart near the trigger re-invokes the run; the claim refuses it.
	second, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Claimed {
		t.Fatal("second run on the same day was claimed")
	}
	if n := len(gw.delivered()); n != 1 {
		t.Fatalf("deliveries = %d, want 1", n)
	}
}

func TestRunOnceNoQualifyingEvents(t *testing.T) {
	gw := &fakeGateway{}
	s, _ := newScheduler(t, gw)

	res, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if res.Sent != 0 || res.Failed != 0 {
		t.Fatalf("sent/failed = %d/%d, want 0/0", res.Sent, res.Failed)
	}
}

func TestNextFire(t *testing.T) {
	s := &Scheduler{hour: 9}

	beforeTrigger := time.Date(2030, 6, 1, 7, 30, 0, 0, time.UTC)
	if got := s.nextFire(beforeTrigger); got != time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC) {
		t.Fatalf("nextFire before trigger = %s", got)
	}

	afterTrigger := time.Date(2030, 6, 1, 9, 0, 0, 1, time.UTC)
	if got := s.nextFire(afterTrigger); got != time.Date(2030, 6, 2, 9, 0, 0, 0, time.UTC) {
		t.Fatalf("nextFire after trigger = %s", got)
	}

	atTrigger := time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC)
	if got := s.nextFire(atTrigger); got != time.Date(2030, 6, 2, 9, 0, 0, 0, time.UTC) {
		t.Fatalf("nextFire at trigger = %s", got)
	}
}
