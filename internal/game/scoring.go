package game

import "strings"

const (
	PairPoints  = 1
	JokerPoints = 3
)

// PointsFor returns the value of a matched card: JokerPoints when its image
// contains keyword (case-insensitive), PairPoints otherwise. An empty keyword
// disables the joker.
func PointsFor(c Card, keyword string) int {
	if IsJoker(c.ImageRef, keyword) {
		return JokerPoints
	}
	return PairPoints
}

// IsJoker reports whether imageRef carries the joker keyword.
func IsJoker(imageRef, keyword string) bool {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return false
	}
	return strings.Contains(strings.ToLower(imageRef), strings.ToLower(keyword))
}
