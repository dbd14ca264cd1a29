package analyzer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickEmptySet(t *testing.T) {
	s := NewWinnerSelector(nil)
	winner, ok := s.Pick(nil)
	assert.False(t, ok)
	assert.Empty(t, winner)
}

func TestPickSingleCandidate(t *testing.T) {
	s := NewWinnerSelector(nil)
	winner, ok := s.Pick([]string{"only_one"})
	assert.True(t, ok)
	assert.Equal(t, "only_one", winner)
}

func TestPickDeterministicWithSeed(t *testing.T) {
	qualified := []string{"a", "b", "c", "d"}

	first := NewWinnerSelector(rand.NewSource(42))
	second := NewWinnerSelector(rand.NewSource(42))

	for i := 0; i < 20; i++ {
		w1, ok1 := first.Pick(qualified)
		w2, ok2 := second.Pick(qualified)
		assert.True(t, ok1)
		assert.True(t, ok2)
		assert.Equal(t, w1, w2)
	}
}

func TestPickCoversAllCandidates(t *testing.T) {
	qualified := []string{"a", "b", "c"}
	s := NewWinnerSelector(rand.NewSource(7))

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		winner, ok := s.Pick(qualified)
		assert.True(t, ok)
		assert.Contains(t, qualified, winner)
		seen[winner] = true
	}
	assert.Len(t, seen, 3)
}
