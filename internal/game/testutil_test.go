package game

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeScheduler queues deferred actions until a test fires them.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// live returns timers that are neither stopped nor fired.
func (s *fakeScheduler) live() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fireNext runs the oldest live timer and returns its delay.
func (s *fakeScheduler) fireNext(t *testing.T) time.Duration {
	t.Helper()
	live := s.live()
	if len(live) == 0 {
		t.Fatal("no pending timer")
	}
	next := live[0]
	next.fired = true
	next.f()
	return next.delay
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memRecords is a map-backed RecordStore; failGet and failSet simulate a broken store.
type memRecords struct {
	data    map[string]int64
	failGet bool
	failSet bool
}

func newMemRecords() *memRecords { return &memRecords{data: map[string]int64{}} }

func (m *memRecords) Get(key string) (int64, bool, error) {
	if m.failGet {
		return 0, false, errors.New("corrupt record")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memRecords) Set(key string, ms int64) error {
	if m.failSet {
		return errors.New("disk full")
	}
	m.data[key] = ms
	return nil
}

func testPool(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("/memory/set1/img%02d.png", i)
	}
	return out
}

func testRules() Rules {
	r := DefaultRules()
	r.JokerKeyword = "joker"
	return r
}

type harness struct {
	e     *Engine
	sched *fakeScheduler
	clock *fakeClock
	recs  *memRecords
}

func newHarness(t *testing.T, players, cards int, pool []string) *harness {
	t.Helper()
	h := &harness{sched: &fakeScheduler{}, clock: newFakeClock(), recs: newMemRecords()}
	e, err := NewEngine(Options{
		Players:    players,
		BoardCards: cards,
		Rules:      testRules(),
		Scheduler:  h.sched,
		Clock:      h.clock.Now,
		Records:    h.recs,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.Start(1, pool); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.e = e
	return h
}

// pairIDs returns the ids of an unmatched pair.
func (h *harness) pairIDs(t *testing.T) (string, string) {
	t.Helper()
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	for i, a := range h.e.cards {
		if a.Matched {
			continue
		}
		for _, b := range h.e.cards[i+1:] {
			if !b.Matched && b.ImageRef == a.ImageRef {
				return a.ID, b.ID
			}
		}
	}
	t.Fatal("no unmatched pair left")
	return "", ""
}

// mismatchIDs returns two unmatched cards with different images.
func (h *harness) mismatchIDs(t *testing.T) (string, string) {
	t.Helper()
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	for i, a := range h.e.cards {
		if a.Matched {
			continue
		}
		for _, b := range h.e.cards[i+1:] {
			if !b.Matched && b.ImageRef != a.ImageRef {
				return a.ID, b.ID
			}
		}
	}
	t.Fatal("no mismatching cards left")
	return "", ""
}

func (h *harness) card(id string) Card {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	return h.e.cards[h.e.indexOf(id)]
}

// playPair flips a and b and runs the resolution.
func (h *harness) playPair(t *testing.T, a, b string) time.Duration {
	t.Helper()
	if !h.e.Flip(a) || !h.e.Flip(b) {
		t.Fatalf("flip %s/%s rejected", a, b)
	}
	return h.sched.fireNext(t)
}
