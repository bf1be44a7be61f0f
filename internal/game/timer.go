// internal/game/timer.go
//
// Single-player stopwatch and best-time bookkeeping.
//
// The stopwatch stores the instant it started rather than counting ticks, so
// elapsed time follows the wall clock no matter how often (or whether) anyone
// looks at it.

package game

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock returns the current time. time.Now in production.
type Clock func() time.Time

// RecordStore is the persisted key→value store for best times (milliseconds).
// Get reports ok=false with a nil error when no record exists.
type RecordStore interface {
	Get(key string) (int64, bool, error)
	Set(key string, ms int64) error
}

// BestTimeKey is the record key for a board size.
func BestTimeKey(boardCards int) string {
	return fmt.Sprintf("bestTime_%d", boardCards)
}

// Stopwatch measures elapsed wall-clock time between Start and Stop.
type Stopwatch struct {
	now     Clock
	started time.Time
	final   time.Duration
	running bool
}

// NewStopwatch builds a stopped stopwatch reading zero.
func NewStopwatch(now Clock) *Stopwatch {
	if now == nil {
		now = time.Now
	}
	return &Stopwatch{now: now}
}

// Start resets to zero and starts running.
func (s *Stopwatch) Start() {
	s.started = s.now()
	s.final = 0
	s.running = true
}

// Stop freezes the elapsed time and returns it. Stopping twice is harmless.
func (s *Stopwatch) Stop() time.Duration {
	if s.running {
		s.final = s.since()
		s.running = false
	}
	return s.final
}

// Elapsed reads the current value without stopping.
func (s *Stopwatch) Elapsed() time.Duration {
	if s.running {
		return s.since()
	}
	return s.final
}

// Running reports whether the stopwatch is ticking.
func (s *Stopwatch) Running() bool { return s.running }

func (s *Stopwatch) since() time.Duration {
	d := s.now().Sub(s.started)
	if d < s.final {
		return s.final
	}
	return d
}

// SaveBestTime stores ms under the board's key when no record exists or ms is
// strictly lower. A failing store is logged and reported as not improved; an
// unreadable record is never overwritten.
func SaveBestTime(store RecordStore, boardCards int, ms int64) bool {
	if store == nil {
		return false
	}
	key := BestTimeKey(boardCards)
	best, ok, err := store.Get(key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("read best time")
		return false
	}
	if ok && ms >= best {
		return false
	}
	if err := store.Set(key, ms); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("save best time")
		return false
	}
	return true
}
