// The ick package is for things I can't believe I have to write.
package ick

import (
	"math/rand"
	"time"
)

// NShuffle shuffles a slice in-place using r.
//
// The "N" prefix is a nod to CL.
func NShuffle[T any](r *rand.Rand, data []T) []T {
	r.Shuffle(len(data), func(i, j int) { data[i], data[j] = data[j], data[i] })
	return data
}

// Shuffle copies a slice, and then shuffles the copy with r.  The input is
// left alone, which matters when it is somebody's configuration.
func Shuffle[T any](r *rand.Rand, in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	NShuffle(r, out)
	return out
}

// NewRand returns a generator seeded with seed.  A zero seed means "pick one
// from the clock"; the seed actually used is returned so a run can be
// reproduced later.
func NewRand(seed int64) (*rand.Rand, int64) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed)), seed
}
