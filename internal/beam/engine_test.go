package beam

import (
	"testing"

	"github.com/hupe1980/vecgo/distance"
	"github.com/hupe1980/vecgo/internal/pqtable"
	"github.com/hupe1980/vecgo/internal/scratch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture builds a tiny 4-point square graph (identity PQ: point i's code
// is just byte(i), and its codebook centroid i equals point i exactly),
// mirroring the "tiny L2 index, identity PQ" scenario.
type fixture struct {
	points    [][]float32
	neighbors [][]uint32
}

func newFixture() *fixture {
	return &fixture{
		points: [][]float32{
			{0, 0},
			{1, 0},
			{0, 1},
			{1, 1},
		},
		neighbors: [][]uint32{
			{1, 2},
			{0, 3},
			{0, 3},
			{1, 2},
		},
	}
}

type fakeSource struct{ f *fixture }

func (s *fakeSource) FetchNodes(ioCtx int, ids []uint32) []FetchedNode {
	out := make([]FetchedNode, len(ids))
	for i, id := range ids {
		out[i] = FetchedNode{ID: id, Coords: s.f.points[id], Neighbors: s.f.neighbors[id]}
	}

	return out
}

type fakeCodes struct{}

func (fakeCodes) Code(id uint32) []byte { return []byte{byte(id)} }

func buildPQ(f *fixture) *pqtable.Table {
	pq, err := pqtable.NewEvenChunks(2, 1)
	if err != nil {
		panic(err)
	}

	centroids := make([]float32, pqtable.NumCentroids*2)
	for i, p := range f.points {
		copy(centroids[i*2:i*2+2], p)
	}

	if err := pq.SetCodebook(0, centroids); err != nil {
		panic(err)
	}

	return pq
}

func newEngine(f *fixture) *Engine {
	pq := buildPQ(f)
	pool := scratch.New(scratch.Config{MaxThreads: 2, QueueCapacity: 10, N: uint64(len(f.points)), NumChunks: 1, BeamWidth: 4})

	return New(Config{
		Metric: distance.MetricL2,
		Nodes:  &fakeSource{f: f},
		Codes:  fakeCodes{},
		PQ:     pq,
		Pool:   pool,
		Medoids: Medoids{
			IDs:     []uint32{0},
			Vectors: [][]float32{f.points[0]},
		},
	})
}

func TestSearchFindsExactPoint(t *testing.T) {
	f := newFixture()
	e := newEngine(f)

	res, err := e.Search([]float32{1, 1}, Options{K: 1, L: 10, BeamWidth: 4})
	require.NoError(t, err)
	require.Len(t, res.IDs, 1)
	assert.Equal(t, uint32(3), res.IDs[0])
	assert.InDelta(t, float32(0), res.Dists[0], 1e-6)
}

func TestSearchReturnsDistancesNonDecreasing(t *testing.T) {
	f := newFixture()
	e := newEngine(f)

	res, err := e.Search([]float32{0.9, 0.9}, Options{K: 4, L: 10, BeamWidth: 4})
	require.NoError(t, err)
	require.Len(t, res.IDs, 4)

	for i := 1; i < len(res.Dists); i++ {
		assert.LessOrEqual(t, res.Dists[i-1], res.Dists[i])
	}

	seen := make(map[uint32]bool)
	for _, id := range res.IDs {
		assert.False(t, seen[id], "duplicate id in results")
		seen[id] = true
		assert.Less(t, id, uint32(len(f.points)))
	}
}

func TestSearchRejectsOversizeBeamWidth(t *testing.T) {
	f := newFixture()
	e := newEngine(f)
	e.cfg.MaxSectorReads = 4
	e.cfg.SectorsPerNode = 1

	_, err := e.Search([]float32{1, 1}, Options{K: 1, L: 10, BeamWidth: 100})
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestFilteredSearchRejectsNonMatchingNeighbors(t *testing.T) {
	f := newFixture()
	e := newEngine(f)

	filter := acceptOnly{2: true, 0: true}

	res, err := e.Search([]float32{0, 1}, Options{
		K: 4, L: 10, BeamWidth: 4,
		Filter:            filter,
		FilterSeedMedoids: []uint32{0},
	})
	require.NoError(t, err)

	for _, id := range res.IDs {
		assert.True(t, filter.Accepts(id))
	}
}

type acceptOnly map[uint32]bool

func (a acceptOnly) Accepts(id uint32) bool { return a[id] }

func TestIOLimitStopsTraversalAndReportsOutOfBudget(t *testing.T) {
	f := newFixture()
	e := newEngine(f)

	res, err := e.Search([]float32{1, 1}, Options{K: 4, L: 10, BeamWidth: 1, IOLimit: 1})
	require.NoError(t, err)
	assert.True(t, res.Stats.OutOfBudget)
	assert.LessOrEqual(t, res.Stats.IOs, 1)
}
