// internal/game/deck.go
//
// Deck building: pick N distinct images, double them, shuffle.
//
// Selection is a partial Fisher–Yates over the cleaned pool (uniform, without
// replacement); the doubled deck then gets a full Fisher–Yates pass.

package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// ErrInsufficientAssets means the pool cannot fill the requested board.
var ErrInsufficientAssets = errors.New("insufficient assets")

// BuildDeck returns a shuffled deck of 2*pairs cards drawn from pool.
func BuildDeck(pool []string, pairs int) ([]Card, error) {
	return buildDeck(pool, pairs, rand.IntN)
}

// buildDeck takes intn so tests can pin the random source.
func buildDeck(pool []string, pairs int, intn func(int) int) ([]Card, error) {
	if pairs <= 0 {
		return nil, fmt.Errorf("%w: need at least one pair", ErrInsufficientAssets)
	}
	images := cleanPool(pool)
	if len(images) < pairs {
		return nil, fmt.Errorf("%w: need %d distinct images, have %d", ErrInsufficientAssets, pairs, len(images))
	}

	// Partial shuffle: the first `pairs` slots end up a uniform sample.
	for i := 0; i < pairs; i++ {
		j := i + intn(len(images)-i)
		images[i], images[j] = images[j], images[i]
	}
	chosen := images[:pairs]

	cards := make([]Card, 0, 2*pairs)
	for _, img := range chosen {
		cards = append(cards, Card{ID: uuid.NewString(), ImageRef: img})
		cards = append(cards, Card{ID: uuid.NewString(), ImageRef: img})
	}
	shuffleCards(cards, intn)
	return cards, nil
}

// cleanPool trims entries, drops blanks and collapses duplicates.
func cleanPool(pool []string) []string {
	seen := make(map[string]struct{}, len(pool))
	out := make([]string, 0, len(pool))
	for _, p := range pool {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func shuffleCards(cards []Card, intn func(int) int) {
	for i := len(cards) - 1; i > 0; i-- {
		j := intn(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}
