package ick

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShuffleLeavesInputAlone(t *testing.T) {
	in := []string{"A", "B", "C", "D"}
	out := Shuffle(rand.New(rand.NewSource(7)), in)

	assert.Equal(t, []string{"A", "B", "C", "D"}, in)
	assert.ElementsMatch(t, in, out)
}

func TestShuffleIsReproducible(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6, 7, 8}
	a := Shuffle(rand.New(rand.NewSource(42)), in)
	b := Shuffle(rand.New(rand.NewSource(42)), in)
	assert.Equal(t, a, b)
}

func TestNewRand(t *testing.T) {
	_, seed := NewRand(99)
	assert.Equal(t, int64(99), seed)

	_, seed = NewRand(0)
	assert.NotZero(t, seed)
}
