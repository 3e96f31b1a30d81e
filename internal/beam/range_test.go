package beam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeSearchReturnsOnlyWithinRange(t *testing.T) {
	f := newFixture()
	e := newEngine(f)

	res, err := e.RangeSearch([]float32{1, 1}, RangeOptions{
		Range:   1.01, // point 3 at dist 0, points 1&2 at dist 1
		MinL:    4,
		MaxL:    16,
		MinBeam: 2,
	})
	require.NoError(t, err)

	for _, d := range res.Dists {
		assert.LessOrEqual(t, d, float32(1.01))
	}

	found := make(map[uint32]bool)
	for _, id := range res.IDs {
		found[id] = true
	}

	assert.True(t, found[3], "exact match must be included")
}
