package beam

import (
	"sort"

	"github.com/hupe1980/vecgo/internal/pqtable"
	"github.com/hupe1980/vecgo/internal/scratch"
)

// localPrune trims a node's neighbor list to the closest
// max(10, floor(r*|N|)) by PQ distance, where r = 1 - prune_ratio. It
// only applies when recompute_neighbors is on; otherwise the neighbor
// list passes through unchanged.
func localPrune(distTable pqtable.DistanceTable, codes CodeSource, neighbors []uint32, opts Options) []uint32 {
	if !opts.RecomputeNeighbors || opts.PruneRatio <= 0 || len(neighbors) == 0 {
		return neighbors
	}

	type scored struct {
		id   uint32
		dist float32
	}

	scoredNeighbors := make([]scored, len(neighbors))

	for i, id := range neighbors {
		d, err := distTable.Lookup(codes.Code(id))
		if err != nil {
			d = float32(1e38)
		}

		scoredNeighbors[i] = scored{id: id, dist: d}
	}

	sort.Slice(scoredNeighbors, func(i, j int) bool { return scoredNeighbors[i].dist < scoredNeighbors[j].dist })

	r := 1 - opts.PruneRatio
	keep := int(r * float32(len(scoredNeighbors)))

	if keep < 10 {
		keep = 10
	}

	if keep > len(scoredNeighbors) {
		keep = len(scoredNeighbors)
	}

	out := make([]uint32, keep)
	for i := 0; i < keep; i++ {
		out[i] = scoredNeighbors[i].id
	}

	return out
}

// globalPruner tracks the open-ended, never-trimmed "global min-heap of
// seen (pq_dist, id) pairs" the global-pruning mode describes: every
// scored neighbor across the whole query is appended and nothing is
// ever evicted, so its backing slice grows monotonically with the
// query's traversal. That growth is a known property of the scheme
// this mode reproduces, not an oversight here.
type globalPruner struct {
	seen []scratch.Candidate
}

// Filter appends ids/dists to the persistent seen set, then keeps only
// the entries among them that fall within the top r*|seen| closest
// overall (r = 1 - prune_ratio) and are not already visited.
func (g *globalPruner) Filter(ids []uint32, dists []float32, ratio float32, visited func(uint32) bool) ([]uint32, []float32) {
	for i, id := range ids {
		g.seen = append(g.seen, scratch.Candidate{ID: id, Dist: dists[i]})
	}

	sort.Slice(g.seen, func(i, j int) bool { return g.seen[i].Dist < g.seen[j].Dist })

	r := 1 - ratio

	keep := int(r * float32(len(g.seen)))
	if keep < 1 {
		keep = 1
	}

	if keep > len(g.seen) {
		keep = len(g.seen)
	}

	threshold := g.seen[keep-1].Dist

	outIDs := ids[:0:0]
	outDists := dists[:0:0]

	for i, id := range ids {
		if dists[i] > threshold {
			continue
		}

		if visited(id) {
			continue
		}

		outIDs = append(outIDs, id)
		outDists = append(outDists, dists[i])
	}

	return outIDs, outDists
}
