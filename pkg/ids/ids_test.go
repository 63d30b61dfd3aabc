package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWatchKeyAllocatorNeverRepeats(t *testing.T) {
	var a WatchKeyAllocator
	seen := make(map[WatchKey]struct{})
	for i := 0; i < 100; i++ {
		k := a.Allocate()
		_, dup := seen[k]
		assert.False(t, dup, "watch key %d reused", k)
		seen[k] = struct{}{}
	}
}

func TestNewSurrogateIDIsNonEmptyAndUnique(t *testing.T) {
	a := NewSurrogateID()
	b := NewSurrogateID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
