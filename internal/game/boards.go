package game

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownBoard is returned for a card count outside the board catalogue.
	ErrUnknownBoard = errors.New("unknown board size")
	// ErrInvalidPlayers is returned when the player count is not 1–4.
	ErrInvalidPlayers = errors.New("players must be between 1 and 4")
)

const (
	MinPlayers = 1
	MaxPlayers = 4
)

// Boards lists the selectable layouts: narrow side first, tall side second.
var Boards = []BoardSize{
	{Cards: 8, Cols: 2, Rows: 4, Label: "8 (2×4)"},
	{Cards: 12, Cols: 3, Rows: 4, Label: "12 (3×4)"},
	{Cards: 16, Cols: 4, Rows: 4, Label: "16 (4×4)"},
	{Cards: 20, Cols: 4, Rows: 5, Label: "20 (4×5)"},
	{Cards: 24, Cols: 4, Rows: 6, Label: "24 (4×6)"},
	{Cards: 30, Cols: 5, Rows: 6, Label: "30 (5×6)"},
	{Cards: 36, Cols: 6, Rows: 6, Label: "36 (6×6)"},
}

// LookupBoard finds the layout for a card count.
func LookupBoard(cards int) (BoardSize, error) {
	for _, b := range Boards {
		if b.Cards == cards {
			return b, nil
		}
	}
	return BoardSize{}, fmt.Errorf("%w: %d", ErrUnknownBoard, cards)
}

// ValidatePlayers checks the player count against the 1–4 range.
func ValidatePlayers(n int) error {
	if n < MinPlayers || n > MaxPlayers {
		return fmt.Errorf("%w: got %d", ErrInvalidPlayers, n)
	}
	return nil
}
