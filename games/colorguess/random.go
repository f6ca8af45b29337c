/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package colorguess

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"slices"
	"sync"
)

// Source is the random number generator behind a Randomizer.
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
}

// Randomizer picks targets and shuffles palettes. It is safe for
// concurrent use.
type Randomizer struct {
	mu  sync.Mutex
	src Source
}

// NewRandomizer returns a Randomizer seeded with seed, or with fresh
// entropy when seed is 0.
func NewRandomizer(seed uint64) *Randomizer {
	if seed == 0 {
		var b [8]byte
		if _, err := crand.Read(b[:]); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		seed = binary.LittleEndian.Uint64(b[:])
	}

	return WithSource(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// WithSource wraps an existing Source.
func WithSource(src Source) *Randomizer {
	return &Randomizer{src: src}
}

// Pick returns a uniformly chosen element of colors, or "" if colors is empty.
func (r *Randomizer) Pick(colors []Color) Color {
	if len(colors) == 0 {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return colors[r.src.IntN(len(colors))]
}

// Shuffle returns a uniformly permuted copy of colors (Fisher-Yates).
func (r *Randomizer) Shuffle(colors []Color) []Color {
	out := slices.Clone(colors)

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(out) - 1; i > 0; i-- {
		j := r.src.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}

	return out
}

// Draw picks the next target from colors and returns it along with a
// reshuffled copy of the palette.
func (r *Randomizer) Draw(colors []Color) (Color, []Color) {
	return r.Pick(colors), r.Shuffle(colors)
}
