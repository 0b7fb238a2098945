// Package random provides a goroutine-safe seedable source for presentation randomness.
package random

import (
	"math/rand"
	"sync"
	"time"
)

// Locked wraps a math/rand generator with a mutex
type Locked struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewLocked returns a generator seeded with seed, or with the clock when seed is 0
func NewLocked(seed int64) *Locked {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Locked{rnd: rand.New(rand.NewSource(seed))}
}

func (l *Locked) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.Intn(n)
}

func (l *Locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.Float64()
}
