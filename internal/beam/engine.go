package beam

import (
	"math"
	"sort"

	"github.com/hupe1980/vecgo/distance"
	"github.com/hupe1980/vecgo/internal/math32"
	"github.com/hupe1980/vecgo/internal/pqtable"
	"github.com/hupe1980/vecgo/internal/scratch"
)

// Config wires an Engine's collaborators: the on-disk/partitioned graph
// reader (C1/C3/C6), the warm cache (C5), the resident PQ code table,
// the PQ distance table (C2), and the optional embedding client (C7)
// and reorder source.
type Config struct {
	Metric      distance.Metric
	MaxBaseNorm float32 // only meaningful for MetricInnerProduct
	DiskPQ      bool    // coords on disk are themselves PQ codes
	Partitioned bool    // graph adjacency lives in a separate partition file

	Nodes   NodeSource
	Cache   Cache // nil disables the warm cache
	Codes   CodeSource
	PQ      *pqtable.Table
	Embed   EmbeddingFetcher // nil disables recompute/deferred-fetch modes
	Reorder ReorderSource    // nil disables the reorder pass

	Pool *scratch.Pool

	Medoids     Medoids
	DummyToReal map[uint32]uint32 // nil if the builder emitted no dummy points

	// MaxSectorReads and SectorsPerNode bound beam_width: a beam wider
	// than MaxSectorReads/SectorsPerNode would overrun the scratch
	// pool's reserved sector-read arena.
	MaxSectorReads int
	SectorsPerNode int64
}

// Engine is the beam search engine (C8).
type Engine struct {
	cfg Config
}

// New builds an Engine from cfg.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Search runs one query through the core beam-search routine every
// entry point (plain, filtered, io-limited, range) funnels into.
func (e *Engine) Search(query []float32, opts Options) (Result, error) {
	if opts.BeamWidth <= 0 {
		opts.BeamWidth = 1
	}

	if e.cfg.SectorsPerNode > 0 && e.cfg.MaxSectorReads > 0 {
		if int64(opts.BeamWidth)*e.cfg.SectorsPerNode > int64(e.cfg.MaxSectorReads) {
			return Result{}, ErrBadArgument
		}
	}

	slot, err := e.cfg.Pool.Acquire()
	if err != nil {
		return Result{}, err
	}
	defer e.cfg.Pool.Release(slot)

	queryNorm := float32(math.Sqrt(float64(math32.Dot(query, query))))

	qm := make([]float32, len(query), len(query)+1)
	copy(qm, query)
	qm = distance.Preprocess(e.cfg.Metric, qm, e.cfg.MaxBaseNorm)

	qPrime, err := e.cfg.PQ.PreprocessQuery(qm)
	if err != nil {
		return Result{}, err
	}

	distTable, err := e.cfg.PQ.PopulateChunkDistances(qPrime)
	if err != nil {
		return Result{}, err
	}

	var stats Stats

	seedID, seedDist, err := e.selectSeed(qm, distTable, opts)
	if err != nil {
		return Result{}, err
	}

	slot.Queue.Insert(seedID, seedDist)
	slot.MarkVisited(seedID)

	if err := e.mainLoop(slot, qm, distTable, opts, &stats); err != nil {
		return Result{}, err
	}

	if opts.DeferredFetch {
		if err := e.deferredRerank(slot, qm, opts); err != nil {
			return Result{}, &ErrDeferredFetchFailed{Err: err}
		}
	}

	if opts.UseReorder && e.cfg.Reorder != nil {
		e.reorderPass(slot, qm, opts)
	}

	return e.finalize(slot, queryNorm, opts, stats), nil
}

func (e *Engine) selectSeed(qm []float32, distTable pqtable.DistanceTable, opts Options) (uint32, float32, error) {
	if opts.Filter == nil {
		bestID, bestDist := uint32(0), float32(math.MaxFloat32)

		for i, id := range e.cfg.Medoids.IDs {
			d := math32.SquaredL2(qm, e.cfg.Medoids.Vectors[i])
			if d < bestDist {
				bestDist = d
				bestID = id
			}
		}

		return bestID, bestDist, nil
	}

	candidates := opts.FilterSeedMedoids
	if len(candidates) == 0 {
		candidates = e.cfg.Medoids.IDs
	}

	bestID, bestDist := uint32(0), float32(math.MaxFloat32)

	for _, id := range candidates {
		d, err := distTable.Lookup(e.cfg.Codes.Code(id))
		if err != nil {
			continue
		}

		if d < bestDist {
			bestDist = d
			bestID = id
		}
	}

	return bestID, bestDist, nil
}

type processedNode struct {
	id        uint32
	rDist     float32 // the distance this node was carried into R with
	coords    []float32
	codes     []byte
	neighbors []uint32
}

func (e *Engine) mainLoop(slot *scratch.Slot, qm []float32, distTable pqtable.DistanceTable, opts Options, stats *Stats) error {
	var global globalPruner

	for slot.Queue.HasUnexpanded() {
		if opts.IOLimit > 0 && stats.IOs >= opts.IOLimit {
			stats.OutOfBudget = true
			break
		}

		width := opts.BeamWidth
		if opts.IOLimit > 0 && opts.IOLimit-stats.IOs < width {
			width = opts.IOLimit - stats.IOs
		}

		beamCands := slot.Queue.PopBeam(width)
		if len(beamCands) == 0 {
			break
		}

		toProcess := e.splitAndFetch(slot, beamCands, stats)

		var batchNeighborIDs []uint32
		var batchPQFallback []float32

		for _, node := range toProcess {
			d := e.realDistance(slot, node, qm, opts)
			slot.F = append(slot.F, scratch.Candidate{ID: node.id, Dist: d})
			stats.CmpCount++

			neighbors := localPrune(distTable, e.cfg.Codes, node.neighbors, opts)

			validNeighbors := neighbors[:0:0]
			for _, v := range neighbors {
				if opts.Filter != nil && !opts.Filter.Accepts(v) {
					continue
				}

				validNeighbors = append(validNeighbors, v)
			}

			if len(validNeighbors) == 0 {
				continue
			}

			codes := make([][]byte, len(validNeighbors))
			for i, v := range validNeighbors {
				codes[i] = e.cfg.Codes.Code(v)
			}

			pqDists := make([]float32, len(validNeighbors))
			if err := distTable.LookupBatch(codes, pqDists); err != nil {
				return err
			}

			if opts.GlobalPruning && opts.RecomputeNeighbors {
				validNeighbors, pqDists = global.Filter(validNeighbors, pqDists, opts.PruneRatio, func(id uint32) bool {
					return slot.Visited.Test(uint64(id))
				})
			}

			for i, v := range validNeighbors {
				if slot.MarkVisited(v) {
					continue
				}

				switch {
				case opts.RecomputeNeighbors && opts.BatchRecompute:
					batchNeighborIDs = append(batchNeighborIDs, v)
					batchPQFallback = append(batchPQFallback, pqDists[i])
				case opts.RecomputeNeighbors:
					dist, err := e.recomputeOne(slot, v, qm, opts)
					if err != nil {
						dist = pqDists[i] // degrade to PQ distance on transient fetch failure
					}

					slot.Queue.Insert(v, dist)
				default:
					slot.Queue.Insert(v, pqDists[i])
				}
			}
		}

		if len(batchNeighborIDs) > 0 {
			e.insertBatchRecompute(slot, batchNeighborIDs, batchPQFallback, qm, opts)
		}

		stats.Hops++
	}

	return nil
}

// splitAndFetch partitions the current beam into cache hits and
// frontier ids needing I/O, issues one batched frontier read, and
// merges the results preserving the beam's best-first order.
func (e *Engine) splitAndFetch(slot *scratch.Slot, beamCands []Candidate, stats *Stats) []processedNode {
	var frontierIDs []uint32

	for _, c := range beamCands {
		if e.cfg.Cache == nil {
			frontierIDs = append(frontierIDs, c.ID)
			continue
		}

		if _, ok := e.cfg.Cache.Get(c.ID); !ok {
			frontierIDs = append(frontierIDs, c.ID)
		}
	}

	var fetched []FetchedNode
	if len(frontierIDs) > 0 {
		fetched = e.cfg.Nodes.FetchNodes(slot.IOCtx, frontierIDs)
		stats.IOs += len(frontierIDs)
	}

	fetchedByID := make(map[uint32]FetchedNode, len(fetched))
	for _, f := range fetched {
		fetchedByID[f.ID] = f
	}

	out := make([]processedNode, 0, len(beamCands))

	for _, c := range beamCands {
		if e.cfg.Cache != nil {
			if cn, ok := e.cfg.Cache.Get(c.ID); ok {
				stats.CacheHits++
				out = append(out, processedNode{id: c.ID, rDist: c.Dist, coords: cn.Coords, neighbors: cn.Neighbors})

				continue
			}
		}

		f, ok := fetchedByID[c.ID]
		if !ok || f.Err != nil {
			// Sector read failed: this node is elided from candidacy for
			// this query; the beam continues with the remaining nodes.
			continue
		}

		out = append(out, processedNode{id: c.ID, rDist: c.Dist, coords: f.Coords, codes: f.Codes, neighbors: f.Neighbors})
	}

	return out
}

func (e *Engine) realDistance(slot *scratch.Slot, node processedNode, qm []float32, opts Options) float32 {
	switch {
	case opts.DeferredFetch:
		return 0
	case opts.SkipSearchReorder:
		return node.rDist
	case opts.RecomputeNeighbors && e.cfg.Partitioned && opts.DedupCache:
		if v, ok := slot.Memo[node.id]; ok {
			return v
		}

		fallthrough
	default:
		if e.cfg.DiskPQ {
			d, err := e.cfg.PQ.L2Distance(qm, node.codes)
			if err != nil {
				return node.rDist
			}

			return d
		}

		return math32.SquaredL2(qm, node.coords)
	}
}

func (e *Engine) finalize(slot *scratch.Slot, queryNorm float32, opts Options, stats Stats) Result {
	sort.Slice(slot.F, func(i, j int) bool { return slot.F[i].Dist < slot.F[j].Dist })

	k := opts.K
	if k > len(slot.F) {
		k = len(slot.F)
	}

	ids := make([]uint32, k)
	dists := make([]float32, k)

	for i := 0; i < k; i++ {
		id := slot.F[i].ID
		if e.cfg.DummyToReal != nil {
			if real, ok := e.cfg.DummyToReal[id]; ok {
				id = real
			}
		}

		ids[i] = id
		dists[i] = distance.Unscale(e.cfg.Metric, slot.F[i].Dist, e.cfg.MaxBaseNorm, queryNorm)
	}

	return Result{IDs: ids, Dists: dists, Stats: stats}
}
