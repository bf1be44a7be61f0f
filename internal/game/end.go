package game

// IsComplete is true iff cards is non-empty and every card is matched.
func IsComplete(cards []Card) bool {
	if len(cards) == 0 {
		return false
	}
	for _, c := range cards {
		if !c.Matched {
			return false
		}
	}
	return true
}

// Winners returns every player index holding the top score.
// More than one winner is a tie.
func Winners(scores []int) Outcome {
	if len(scores) == 0 {
		return Outcome{Winners: []int{}}
	}
	top := scores[0]
	for _, s := range scores[1:] {
		if s > top {
			top = s
		}
	}
	out := Outcome{Winners: []int{}, MaxScore: top}
	for i, s := range scores {
		if s == top {
			out.Winners = append(out.Winners, i)
		}
	}
	out.Tie = len(out.Winners) > 1
	return out
}

// countMatchedPairs returns how many pairs are already found.
func countMatchedPairs(cards []Card) int {
	n := 0
	for _, c := range cards {
		if c.Matched {
			n++
		}
	}
	return n / 2
}
