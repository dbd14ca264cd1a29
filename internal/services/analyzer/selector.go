package analyzer

import (
	"math/rand"
	"time"
)

// WinnerSelector draws a winner uniformly at random from the qualified set.
// It is the sole source of non-determinism in the pipeline, so the random
// source is injectable for deterministic tests.
type WinnerSelector struct {
	rng *rand.Rand
}

// NewWinnerSelector creates a selector over the given source; nil falls back
// to a time-seeded source.
func NewWinnerSelector(source rand.Source) *WinnerSelector {
	if source == nil {
		source = rand.NewSource(time.Now().UnixNano())
	}
	return &WinnerSelector{rng: rand.New(source)}
}

// Pick returns one element of qualified chosen uniformly, or false when the
// set is empty.
func (s *WinnerSelector) Pick(qualified []string) (string, bool) {
	if len(qualified) == 0 {
		return "", false
	}
	return qualified[s.rng.Intn(len(qualified))], true
}
