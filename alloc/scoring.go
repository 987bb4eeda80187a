package alloc

import "fmt"

// Scoring ranks a tuple of preference positions; lower is better.
type Scoring int

const (
	// SumOfRanks scores a tuple by the sum of its positions.
	SumOfRanks Scoring = iota
	// MaxRank scores a tuple by its worst position.
	MaxRank
)

var scoringNames = map[Scoring]string{
	SumOfRanks: "sum",
	MaxRank:    "max",
}

func (s Scoring) String() string {
	if n, ok := scoringNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Scoring(%d)", int(s))
}

func (s Scoring) valid() bool {
	_, ok := scoringNames[s]
	return ok
}

// ParseScoring accepts "sum" or "max".  The empty string is "sum".
func ParseScoring(name string) (Scoring, error) {
	if name == "" {
		return SumOfRanks, nil
	}
	for s, n := range scoringNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown scoring policy %q (want \"sum\" or \"max\")", name)
}

// Score returns the priority of positions under s.
func (s Scoring) Score(positions []int) int {
	score := 0
	for _, p := range positions {
		switch s {
		case MaxRank:
			score = max(score, p)
		default:
			score += p
		}
	}
	return score
}
