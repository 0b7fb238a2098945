package random

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockedIsDeterministicForSeed(t *testing.T) {
	a, b := NewLocked(7), NewLocked(7)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Intn(100), b.Intn(100))
		assert.Equal(t, a.Float64(), b.Float64())
	}
}

func TestLockedConcurrentUse(t *testing.T) {
	r := NewLocked(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v := r.Intn(10)
				assert.True(t, v >= 0 && v < 10)
			}
		}()
	}
	wg.Wait()
}
