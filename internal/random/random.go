// Package random provides the injectable random source shared by the
// extractor and the matcher's uncertainty policy.
package random

import (
	"math/rand"
	"sync"
	"time"
)

// Rand is the subset of *rand.Rand used by the random strategies.
type Rand interface {
	Intn(n int) int
}

// LockedRand is a *rand.Rand that is safe for concurrent use.
type LockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLockedRand returns a seeded, goroutine-safe random source.
func NewLockedRand(seed int64) *LockedRand {
	return &LockedRand{rng: rand.New(rand.NewSource(seed))}
}

// NewTimeSeeded returns a LockedRand seeded from the wall clock.
func NewTimeSeeded() *LockedRand {
	return NewLockedRand(time.Now().UnixNano())
}

// Intn returns a uniform value in [0, n).
func (r *LockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}
