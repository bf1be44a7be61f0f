// internal/game/types.go
//
// Core type definitions for the memory game engine.
// Defines:
//   - Phase: coarse state of a session (idle/one_open/resolving/all_matched).
//   - Card: one face-down tile on the board.
//   - BoardSize: card count plus its column/row layout.
//   - Rules: tunable scoring keyword and pacing delays.
//   - Snapshot/CardView/Outcome: read-only views handed to clients.

package game

import "time"

// Phase represents where a session is in the flip → resolve cycle.
// Possible values:
//   - "idle":        no card open, input accepted.
//   - "one_open":    one card open, waiting for the second.
//   - "resolving":   two cards open, input locked until evaluation.
//   - "all_matched": every pair found; terminal.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseOneOpen    Phase = "one_open"
	PhaseResolving  Phase = "resolving"
	PhaseAllMatched Phase = "all_matched"
)

// Card is a single tile. Exactly two cards in a session share an ImageRef.
type Card struct {
	ID       string // Unique id assigned at deal time (never reused).
	ImageRef string // Opaque image key; two cards match iff these are equal.
	FaceUp   bool   // Currently revealed.
	Matched  bool   // Pair confirmed.
	Owner    *int   // Player index that matched the pair; set once.
}

// BoardSize is one of the fixed board layouts.
type BoardSize struct {
	Cards int    `json:"cards" yaml:"cards"`
	Cols  int    `json:"cols" yaml:"cols"`
	Rows  int    `json:"rows" yaml:"rows"`
	Label string `json:"label" yaml:"label"`
}

// Pairs returns how many distinct images the board needs.
func (b BoardSize) Pairs() int { return b.Cards / 2 }

// Rules holds the configurable parts of play.
type Rules struct {
	JokerKeyword   string        // Case-insensitive substring marking the bonus pair.
	MatchDelay     time.Duration // Pause before a matched pair is applied.
	MismatchDelay  time.Duration // Pause before a mismatched pair turns back.
	EndScreenDelay time.Duration // Pause between all-matched and the end screen.
}

// DefaultRules mirrors the values the game shipped with.
func DefaultRules() Rules {
	return Rules{
		JokerKeyword:   "heerjan",
		MatchDelay:     650 * time.Millisecond,
		MismatchDelay:  1200 * time.Millisecond,
		EndScreenDelay: 1500 * time.Millisecond,
	}
}

// Outcome is the winner computation for a finished session.
type Outcome struct {
	Winners  []int `json:"winners"`
	Tie      bool  `json:"tie"`
	MaxScore int   `json:"maxScore"`
}

// CardView is the client-facing representation of a card.
// Image is only included when the card is face up or matched.
type CardView struct {
	ID      string `json:"id"`
	Image   string `json:"image,omitempty"`
	FaceUp  bool   `json:"faceUp"`
	Matched bool   `json:"matched"`
	Owner   *int   `json:"owner,omitempty"`
}

// Snapshot is an immutable copy of a session's observable state.
type Snapshot struct {
	GameID       string     `json:"gameId"`
	Generation   uint64     `json:"generation"`
	Phase        Phase      `json:"phase"`
	Finished     bool       `json:"finished"`
	Board        BoardSize  `json:"board"`
	ImageSet     int        `json:"imageSet"`
	Cards        []CardView `json:"cards"`
	OpenIDs      []string   `json:"openIds"`
	InputLocked  bool       `json:"inputLocked"`
	ActivePlayer int        `json:"activePlayer"`
	Players      int        `json:"players"`
	Scores       []int      `json:"scores"`
	PairsFound   int        `json:"pairsFound"`
	TotalPairs   int        `json:"totalPairs"`
	ElapsedMs    *int64     `json:"elapsedMs,omitempty"` // single-player only
	BestMs       *int64     `json:"bestMs,omitempty"`    // single-player only
	NewRecord    bool       `json:"newRecord,omitempty"`
	Outcome      *Outcome   `json:"outcome,omitempty"` // set once finished
}
