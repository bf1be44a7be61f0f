// internal/game/engine.go
//
// Core game engine for a single memory session.
// Responsibilities:
//   - Deal a new session (Start) from a resolved image pool.
//   - Accept or silently drop flip requests (Flip).
//   - Resolve an open pair after the match/mismatch delay: score, ownership, turn rotation.
//   - Detect completion, stop the single-player stopwatch and persist the best time.
//   - Expose the end screen after a pacing delay.
//
// Notes:
//   - One mutex serialises every mutation; HTTP handlers and timer callbacks all go through it.
//   - Deferred work is tagged with the session generation. Start and Close bump the
//     generation, so a callback scheduled for a replaced session is discarded.
//   - Scheduler implementations must not run f synchronously inside AfterFunc.
package game

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Timer is a cancellable pending action.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Dealer supplies the image set, resolved pool and random source for one deal.
type Dealer func() (imageSet int, pool []string, intn func(int) int)

// ErrNoDealer is returned by Redeal on an engine built without a Dealer.
var ErrNoDealer = errors.New("no dealer configured")

// Options configures an Engine. Zero Scheduler/Clock fall back to wall time.
type Options struct {
	Players    int
	BoardCards int
	Rules      Rules
	Scheduler  Scheduler
	Clock      Clock
	Records    RecordStore
	Dealer     Dealer

	// OnComplete runs (outside the engine lock) when the last pair is matched.
	// Close waits for a running hook, so the hook must not call Close.
	OnComplete func(Snapshot)
}

// Engine owns one session and is safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	id      string
	players int
	board   BoardSize
	rules   Rules
	sched   Scheduler
	records RecordStore
	dealer  Dealer
	onDone  func(Snapshot)

	gen      uint64
	dealt    bool
	closed   bool
	imageSet int
	cards    []Card
	open     []string
	locked   bool
	active   int
	scores   []int
	phase    Phase
	finished bool

	watch     *Stopwatch
	best      *int64
	newRecord bool

	pending Timer
	subs    map[chan Snapshot]struct{}
	hooks   sync.WaitGroup
}

// NewEngine validates the setup. No session exists until Start.
func NewEngine(opts Options) (*Engine, error) {
	if err := ValidatePlayers(opts.Players); err != nil {
		return nil, err
	}
	board, err := LookupBoard(opts.BoardCards)
	if err != nil {
		return nil, err
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = wallScheduler{}
	}
	return &Engine{
		id:      randomID(),
		players: opts.Players,
		board:   board,
		rules:   opts.Rules,
		sched:   sched,
		records: opts.Records,
		dealer:  opts.Dealer,
		onDone:  opts.OnComplete,
		phase:   PhaseIdle,
		watch:   NewStopwatch(opts.Clock),
		subs:    make(map[chan Snapshot]struct{}),
	}, nil
}

// ID is the engine's game identifier.
func (e *Engine) ID() string { return e.id }

// Players returns the fixed player count.
func (e *Engine) Players() int { return e.players }

// Board returns the fixed board layout.
func (e *Engine) Board() BoardSize { return e.board }

// Start deals a fresh session from pool (already resolved image refs of set
// imageSet), replacing any previous one. On ErrInsufficientAssets the current
// session is left untouched.
func (e *Engine) Start(imageSet int, pool []string) error {
	return e.StartWith(imageSet, pool, rand.IntN)
}

// Redeal starts a fresh session from the configured Dealer.
func (e *Engine) Redeal() error {
	if e.dealer == nil {
		return ErrNoDealer
	}
	set, pool, intn := e.dealer()
	if intn == nil {
		intn = rand.IntN
	}
	return e.StartWith(set, pool, intn)
}

// StartWith is Start with an explicit random source for selection and
// shuffle. A source seeded the same way always yields the same layout.
func (e *Engine) StartWith(imageSet int, pool []string, intn func(int) int) error {
	cards, err := buildDeck(pool, e.board.Pairs(), intn)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.cancelPending()
	e.gen++
	e.dealt = true
	e.imageSet = imageSet
	e.cards = cards
	e.open = make([]string, 0, 2)
	e.locked = false
	e.active = 0
	e.scores = make([]int, e.players)
	e.phase = PhaseIdle
	e.finished = false
	e.newRecord = false
	e.best = nil
	if e.players == 1 {
		e.watch.Start()
		e.best = e.loadBest()
	}
	log.Debug().Str("gameId", e.id).Uint64("gen", e.gen).Int("cards", len(cards)).Int("set", imageSet).Msg("deal")
	e.publish()
	return nil
}

// Flip opens a card. It returns false, changing nothing, when the request is
// not allowed: input locked, game over, unknown id, card already face up or
// matched, or the card is the one already open.
func (e *Engine) Flip(cardID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.dealt || e.closed || e.locked {
		return false
	}
	if e.phase != PhaseIdle && e.phase != PhaseOneOpen {
		return false
	}
	if len(e.open) >= 2 || slices.Contains(e.open, cardID) {
		return false
	}
	i := e.indexOf(cardID)
	if i < 0 {
		return false
	}
	c := &e.cards[i]
	if c.FaceUp || c.Matched {
		return false
	}

	c.FaceUp = true
	e.open = append(e.open, cardID)
	if len(e.open) == 1 {
		e.phase = PhaseOneOpen
		e.publish()
		return true
	}

	e.phase = PhaseResolving
	e.locked = true
	delay := e.rules.MismatchDelay
	if e.openPairMatches() {
		delay = e.rules.MatchDelay
	}
	gen := e.gen
	e.pending = e.sched.AfterFunc(delay, func() { e.resolve(gen) })
	e.publish()
	return true
}

// resolve applies the pending pair evaluation for generation gen.
func (e *Engine) resolve(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.closed || e.phase != PhaseResolving {
		e.mu.Unlock()
		return
	}
	e.pending = nil

	if e.openPairMatches() {
		p := e.active
		first := e.indexOf(e.open[0])
		for _, id := range e.open {
			owner := p
			c := &e.cards[e.indexOf(id)]
			c.Matched = true
			c.Owner = &owner
		}
		e.scores[p] += PointsFor(e.cards[first], e.rules.JokerKeyword)
	} else {
		for _, id := range e.open {
			if i := e.indexOf(id); i >= 0 {
				e.cards[i].FaceUp = false
			}
		}
		e.active = (e.active + 1) % e.players
	}
	e.open = e.open[:0]
	e.locked = false
	e.phase = PhaseIdle

	done := IsComplete(e.cards)
	if done {
		e.complete()
	}
	e.publish()
	runHook := done && e.onDone != nil
	var snap Snapshot
	if runHook {
		snap = e.snapshotLocked()
		e.hooks.Add(1)
	}
	e.mu.Unlock()

	if runHook {
		defer e.hooks.Done()
		e.onDone(snap)
	}
}

// complete enters the terminal phase. Caller holds e.mu.
func (e *Engine) complete() {
	e.phase = PhaseAllMatched
	if e.players == 1 {
		ms := e.watch.Stop().Milliseconds()
		e.newRecord = SaveBestTime(e.records, e.board.Cards, ms)
		e.best = e.loadBest()
		log.Info().Str("gameId", e.id).Int64("ms", ms).Bool("record", e.newRecord).Msg("solo game complete")
	} else {
		log.Info().Str("gameId", e.id).Ints("scores", e.scores).Msg("game complete")
	}
	gen := e.gen
	e.pending = e.sched.AfterFunc(e.rules.EndScreenDelay, func() { e.finish(gen) })
}

// finish exposes the end screen once the pacing delay has passed.
func (e *Engine) finish(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen || e.closed || e.phase != PhaseAllMatched {
		return
	}
	e.pending = nil
	e.finished = true
	e.publish()
}

// Close cancels pending work and ends every subscription. It returns once a
// running OnComplete hook has finished.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cancelPending()
	e.gen++
	e.watch.Stop()
	for ch := range e.subs {
		close(ch)
	}
	e.subs = nil
	e.mu.Unlock()

	e.hooks.Wait()
}

// Snapshot returns a copy of the observable state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe streams snapshots after every change, starting with the current
// one. Slow readers only ever miss intermediate states, never the latest.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 4)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return ch, func() {}
	}
	e.subs[ch] = struct{}{}
	ch <- e.snapshotLocked()
	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subs[ch]; ok {
			delete(e.subs, ch)
			close(ch)
		}
	}
}

// publish fans the current snapshot out to subscribers. Caller holds e.mu.
func (e *Engine) publish() {
	if len(e.subs) == 0 {
		return
	}
	snap := e.snapshotLocked()
	for ch := range e.subs {
		select {
		case ch <- snap:
		default:
			// Full: drop the oldest queued snapshot to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		GameID:       e.id,
		Generation:   e.gen,
		Phase:        e.phase,
		Finished:     e.finished,
		Board:        e.board,
		ImageSet:     e.imageSet,
		Cards:        make([]CardView, len(e.cards)),
		OpenIDs:      append([]string{}, e.open...),
		InputLocked:  e.locked,
		ActivePlayer: e.active,
		Players:      e.players,
		Scores:       append([]int{}, e.scores...),
		PairsFound:   countMatchedPairs(e.cards),
		TotalPairs:   e.board.Pairs(),
		NewRecord:    e.newRecord,
	}
	for i, c := range e.cards {
		v := CardView{ID: c.ID, FaceUp: c.FaceUp, Matched: c.Matched}
		if c.FaceUp || c.Matched {
			v.Image = c.ImageRef
		}
		if c.Owner != nil {
			o := *c.Owner
			v.Owner = &o
		}
		s.Cards[i] = v
	}
	if e.players == 1 && e.dealt {
		ms := e.watch.Elapsed().Milliseconds()
		s.ElapsedMs = &ms
		if e.best != nil {
			b := *e.best
			s.BestMs = &b
		}
	}
	if e.finished {
		o := Winners(e.scores)
		s.Outcome = &o
	}
	return s
}

// openPairMatches reports whether two distinct open cards share an image.
func (e *Engine) openPairMatches() bool {
	if len(e.open) != 2 || e.open[0] == e.open[1] {
		return false
	}
	a, b := e.indexOf(e.open[0]), e.indexOf(e.open[1])
	if a < 0 || b < 0 {
		return false
	}
	return e.cards[a].ImageRef == e.cards[b].ImageRef
}

func (e *Engine) indexOf(id string) int {
	for i := range e.cards {
		if e.cards[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) cancelPending() {
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
}

func (e *Engine) loadBest() *int64 {
	if e.records == nil {
		return nil
	}
	v, ok, err := e.records.Get(BestTimeKey(e.board.Cards))
	if err != nil || !ok {
		return nil
	}
	return &v
}

// randomID returns a compact 16‑hex‑char identifier.
func randomID() string {
	var b [8]byte
	_, _ = crand.Read(b[:])
	return hex.EncodeToString(b[:])
}
