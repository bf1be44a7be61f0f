package game

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineValidatesSetup(t *testing.T) {
	_, err := NewEngine(Options{Players: 0, BoardCards: 16})
	assert.ErrorIs(t, err, ErrInvalidPlayers)

	_, err = NewEngine(Options{Players: 2, BoardCards: 14})
	assert.ErrorIs(t, err, ErrUnknownBoard)

	e, err := NewEngine(Options{Players: 4, BoardCards: 36})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID())
	assert.Equal(t, 18, e.Board().Pairs())
	assert.False(t, e.Flip("anything"), "no session dealt yet")
}

func TestStartDealsFreshSession(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t, 3, 16, testPool(18))
	s := h.e.Snapshot()

	assert.Equal(PhaseIdle, s.Phase)
	assert.Len(s.Cards, 16)
	assert.Equal([]int{0, 0, 0}, s.Scores)
	assert.Equal(0, s.ActivePlayer)
	assert.Equal(8, s.TotalPairs)
	assert.Equal(0, s.PairsFound)
	assert.Empty(s.OpenIDs)
	assert.False(s.InputLocked)
	assert.Nil(s.ElapsedMs, "no stopwatch with several players")
	for _, c := range s.Cards {
		assert.Empty(c.Image, "face-down image must stay hidden")
	}
}

func TestStartInsufficientAssetsKeepsSession(t *testing.T) {
	h := newHarness(t, 2, 8, testPool(4))
	before := h.e.Snapshot()

	err := h.e.Start(2, testPool(3))
	assert.ErrorIs(t, err, ErrInsufficientAssets)
	assert.Equal(t, before, h.e.Snapshot())
}

func TestFlipIgnoredCases(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t, 2, 8, testPool(4))
	a, b := h.pairIDs(t)
	x, y := h.mismatchIDs(t)

	assert.False(h.e.Flip("no-such-card"))

	require.True(t, h.e.Flip(x))
	before := h.e.Snapshot()
	assert.False(h.e.Flip(x), "double tap on the open card")
	assert.Equal(before, h.e.Snapshot())
	assert.Equal(PhaseOneOpen, before.Phase)

	require.True(t, h.e.Flip(y))
	locked := h.e.Snapshot()
	assert.True(locked.InputLocked)
	assert.Equal(PhaseResolving, locked.Phase)
	assert.False(h.e.Flip(a), "tap while resolving")
	assert.Equal(locked, h.e.Snapshot())

	h.sched.fireNext(t)
	h.playPair(t, a, b)
	matched := h.e.Snapshot()
	assert.False(h.e.Flip(a), "matched card")
	assert.Equal(matched, h.e.Snapshot())
}

func TestMatchKeepsTurn(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t, 2, 8, testPool(4))
	a, b := h.pairIDs(t)

	delay := h.playPair(t, a, b)
	assert.Equal(testRules().MatchDelay, delay)

	s := h.e.Snapshot()
	assert.Equal([]int{1, 0}, s.Scores)
	assert.Equal(0, s.ActivePlayer)
	assert.Equal(PhaseIdle, s.Phase)
	assert.False(s.InputLocked)
	assert.Empty(s.OpenIDs)
	assert.Equal(1, s.PairsFound)
	for _, id := range []string{a, b} {
		c := h.card(id)
		assert.True(c.Matched)
		require.NotNil(t, c.Owner)
		assert.Equal(0, *c.Owner)
	}
}

func TestMismatchAdvancesTurn(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t, 3, 8, testPool(4))

	for round, want := range []int{1, 2, 0, 1} {
		x, y := h.mismatchIDs(t)
		delay := h.playPair(t, x, y)
		assert.Equal(testRules().MismatchDelay, delay)

		s := h.e.Snapshot()
		assert.Equal(want, s.ActivePlayer, "round %d", round)
		assert.Equal([]int{0, 0, 0}, s.Scores)
		assert.False(h.card(x).FaceUp)
		assert.False(h.card(y).FaceUp)
		assert.Nil(h.card(x).Owner)
	}
}

func TestJokerPairScoresThree(t *testing.T) {
	pool := []string{"/m/set1/a.png", "/m/set1/b.png", "/m/set1/c.png", "/m/set1/Joker.png"}
	h := newHarness(t, 2, 8, pool)

	for {
		a, b := h.pairIDs(t)
		if IsJoker(h.card(a).ImageRef, "joker") {
			h.playPair(t, a, b)
			break
		}
		h.playPair(t, a, b)
	}
	s := h.e.Snapshot()
	assert.Equal(t, 0, s.ActivePlayer)
	assert.Equal(t, JokerPoints+PairPoints*(s.PairsFound-1), s.Scores[0])
}

func TestSameCardTwiceIsNotAMatch(t *testing.T) {
	h := newHarness(t, 2, 8, testPool(4))
	a, _ := h.pairIDs(t)

	// Force the impossible state directly.
	h.e.mu.Lock()
	h.e.cards[h.e.indexOf(a)].FaceUp = true
	h.e.open = []string{a, a}
	h.e.phase = PhaseResolving
	h.e.locked = true
	gen := h.e.gen
	h.e.mu.Unlock()

	h.e.resolve(gen)
	s := h.e.Snapshot()
	assert.Equal(t, []int{0, 0}, s.Scores)
	assert.Equal(t, 1, s.ActivePlayer)
	assert.False(t, h.card(a).Matched)
	assert.False(t, h.card(a).FaceUp)
}

func TestTwoPlayerScenario(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t, 2, 8, testPool(4))

	// Player 0: two matches, then a miss.
	a, b := h.pairIDs(t)
	h.playPair(t, a, b)
	a, b = h.pairIDs(t)
	h.playPair(t, a, b)
	x, y := h.mismatchIDs(t)
	h.playPair(t, x, y)

	s := h.e.Snapshot()
	assert.Equal([]int{2, 0}, s.Scores)
	assert.Equal(1, s.ActivePlayer)

	// Player 1: one match, then the last one.
	a, b = h.pairIDs(t)
	h.playPair(t, a, b)
	s = h.e.Snapshot()
	assert.Equal([]int{2, 1}, s.Scores)
	assert.Equal(1, s.ActivePlayer)

	a, b = h.pairIDs(t)
	h.playPair(t, a, b)
	s = h.e.Snapshot()
	assert.Equal([]int{2, 2}, s.Scores)
	assert.Equal(1, s.ActivePlayer)
	assert.Equal(PhaseAllMatched, s.Phase)
	assert.False(s.Finished)
	assert.Nil(s.Outcome)
	assert.False(h.e.Flip(a), "terminal")

	delay := h.sched.fireNext(t)
	assert.Equal(testRules().EndScreenDelay, delay)
	s = h.e.Snapshot()
	assert.True(s.Finished)
	require.NotNil(t, s.Outcome)
	assert.Equal([]int{0, 1}, s.Outcome.Winners)
	assert.True(s.Outcome.Tie)
	assert.Empty(h.recs.data, "no records for multi-player games")
}

func TestResetDiscardsPendingResolution(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t, 2, 8, testPool(4))
	a, b := h.pairIDs(t)
	require.True(t, h.e.Flip(a))
	require.True(t, h.e.Flip(b))
	stale := h.sched.live()
	require.Len(t, stale, 1)

	require.NoError(t, h.e.Start(2, testPool(4)))
	assert.True(stale[0].stopped, "reset stops the pending timer")

	// Even if the callback still runs, it must not touch the new session.
	fresh := h.e.Snapshot()
	stale[0].f()
	assert.Equal(fresh, h.e.Snapshot())
	assert.Equal([]int{0, 0}, fresh.Scores)
	assert.Equal(2, fresh.ImageSet)
}

func TestCloseCancelsEverything(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t, 1, 8, testPool(4))
	ch, _ := h.e.Subscribe()
	<-ch

	a, b := h.pairIDs(t)
	require.True(t, h.e.Flip(a))
	<-ch
	require.True(t, h.e.Flip(b))
	<-ch
	pending := h.sched.live()
	require.Len(t, pending, 1)

	h.e.Close()
	assert.True(pending[0].stopped)
	pending[0].f()
	assert.True(h.e.Snapshot().InputLocked, "stale resolution ignored")
	assert.False(h.e.Flip(a))

	_, open := <-ch
	assert.False(open, "subscription closed")

	ms := *h.e.Snapshot().ElapsedMs
	h.clock.Advance(time.Minute)
	assert.Equal(ms, *h.e.Snapshot().ElapsedMs, "stopwatch stopped")
	assert.NoError(h.e.Start(1, testPool(4)), "start after close is a no-op")
}

func TestSinglePlayerStopwatchAndRecord(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t, 1, 8, testPool(4))

	s := h.e.Snapshot()
	require.NotNil(t, s.ElapsedMs)
	assert.Equal(int64(0), *s.ElapsedMs)
	assert.Nil(s.BestMs)

	for i := 0; i < 4; i++ {
		h.clock.Advance(2 * time.Second)
		a, b := h.pairIDs(t)
		h.playPair(t, a, b)
	}
	s = h.e.Snapshot()
	assert.Equal(PhaseAllMatched, s.Phase)
	assert.Equal(int64(8000), *s.ElapsedMs)
	assert.True(s.NewRecord)
	require.NotNil(t, s.BestMs)
	assert.Equal(int64(8000), *s.BestMs)
	assert.Equal(int64(8000), h.recs.data["bestTime_8"])

	// Frozen after completion.
	h.clock.Advance(time.Hour)
	assert.Equal(int64(8000), *h.e.Snapshot().ElapsedMs)

	// A slower second game leaves the record alone.
	require.NoError(t, h.e.Start(1, testPool(4)))
	s = h.e.Snapshot()
	assert.Equal(int64(0), *s.ElapsedMs)
	assert.Equal(int64(8000), *s.BestMs)
	for i := 0; i < 4; i++ {
		h.clock.Advance(3 * time.Second)
		a, b := h.pairIDs(t)
		h.playPair(t, a, b)
	}
	s = h.e.Snapshot()
	assert.False(s.NewRecord)
	assert.Equal(int64(12000), *s.ElapsedMs)
	assert.Equal(int64(8000), h.recs.data["bestTime_8"])
}

func TestBrokenRecordStoreDoesNotCrash(t *testing.T) {
	h := newHarness(t, 1, 8, testPool(4))
	h.recs.failSet = true
	for i := 0; i < 4; i++ {
		a, b := h.pairIDs(t)
		h.playPair(t, a, b)
	}
	s := h.e.Snapshot()
	assert.Equal(t, PhaseAllMatched, s.Phase)
	assert.False(t, s.NewRecord)
	assert.Nil(t, s.BestMs)
}

func TestOnCompleteHook(t *testing.T) {
	sched := &fakeScheduler{}
	var got []Snapshot
	e, err := NewEngine(Options{
		Players:    2,
		BoardCards: 8,
		Rules:      testRules(),
		Scheduler:  sched,
		OnComplete: func(s Snapshot) { got = append(got, s) },
	})
	require.NoError(t, err)
	require.NoError(t, e.Start(1, testPool(4)))
	h := &harness{e: e, sched: sched}
	for i := 0; i < 4; i++ {
		a, b := h.pairIDs(t)
		h.playPair(t, a, b)
	}
	require.Len(t, got, 1)
	assert.Equal(t, PhaseAllMatched, got[0].Phase)
	assert.Equal(t, []int{4, 0}, got[0].Scores)
}

func TestCloseWaitsForOnComplete(t *testing.T) {
	sched := &fakeScheduler{}
	started := make(chan struct{})
	release := make(chan struct{})
	e, err := NewEngine(Options{
		Players:    2,
		BoardCards: 8,
		Rules:      testRules(),
		Scheduler:  sched,
		OnComplete: func(Snapshot) {
			close(started)
			<-release
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.Start(1, testPool(4)))
	h := &harness{e: e, sched: sched}
	for i := 0; i < 3; i++ {
		a, b := h.pairIDs(t)
		h.playPair(t, a, b)
	}
	a, b := h.pairIDs(t)
	require.True(t, e.Flip(a))
	require.True(t, e.Flip(b))
	last := sched.live()[0]
	last.fired = true
	go last.f()
	<-started

	closed := make(chan struct{})
	go func() {
		e.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while the completion hook was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close never returned")
	}
}

func TestSnapshotRevealsOpenAndMatchedImages(t *testing.T) {
	h := newHarness(t, 2, 8, testPool(4))
	a, b := h.pairIDs(t)
	require.True(t, h.e.Flip(a))

	for _, c := range h.e.Snapshot().Cards {
		if c.ID == a {
			assert.Equal(t, h.card(a).ImageRef, c.Image)
		} else {
			assert.Empty(t, c.Image)
		}
	}
	require.True(t, h.e.Flip(b))
	h.sched.fireNext(t)
	for _, c := range h.e.Snapshot().Cards {
		if c.ID == a || c.ID == b {
			assert.NotEmpty(t, c.Image)
			require.NotNil(t, c.Owner)
		}
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	h := newHarness(t, 2, 8, testPool(4))
	ch, cancel := h.e.Subscribe()
	first := <-ch
	assert.Equal(t, PhaseIdle, first.Phase)

	a, _ := h.pairIDs(t)
	require.True(t, h.e.Flip(a))
	next := <-ch
	assert.Equal(t, PhaseOneOpen, next.Phase)
	assert.Equal(t, []string{a}, next.OpenIDs)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestRedealUsesDealer(t *testing.T) {
	seeded := func() func(int) int { return rand.New(rand.NewPCG(3, 5)).IntN }
	calls := 0
	e, err := NewEngine(Options{
		Players:    2,
		BoardCards: 8,
		Rules:      testRules(),
		Scheduler:  &fakeScheduler{},
		Dealer: func() (int, []string, func(int) int) {
			calls++
			return 4, testPool(10), seeded()
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.Redeal())
	first := e.Snapshot()
	e.mu.Lock()
	layout := make([]string, len(e.cards))
	for i, c := range e.cards {
		layout[i] = c.ImageRef
	}
	e.mu.Unlock()

	require.NoError(t, e.Redeal())
	second := e.Snapshot()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 4, second.ImageSet)
	assert.Greater(t, second.Generation, first.Generation)

	e.mu.Lock()
	for i, c := range e.cards {
		assert.Equal(t, layout[i], c.ImageRef, "same seed, same layout")
	}
	e.mu.Unlock()

	bare, err := NewEngine(Options{Players: 1, BoardCards: 8, Rules: testRules()})
	require.NoError(t, err)
	assert.ErrorIs(t, bare.Redeal(), ErrNoDealer)
}
