package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/voxroom/internal/domain"
)

func TestShouldInitiateIsSymmetricAndStable(t *testing.T) {
	t.Parallel()

	pairs := [][2]domain.PeerID{
		{"a", "b"},
		{"9f1c", "9f1b"},
		{"peer-10", "peer-9"},
		{"Zed", "alice"},
	}
	for _, p := range pairs {
		a, b := p[0], p[1]
		first := ShouldInitiate(a, b)
		assert.NotEqual(t, first, ShouldInitiate(b, a), "exactly one side initiates for %s/%s", a, b)
		for range 3 {
			assert.Equal(t, first, ShouldInitiate(a, b))
		}
	}
	assert.False(t, ShouldInitiate("same", "same"))
}
