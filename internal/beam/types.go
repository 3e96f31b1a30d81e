package beam

import "github.com/hupe1980/vecgo/internal/scratch"

// FetchedNode is one node's coordinate/adjacency data as returned by a
// NodeSource batch read, or the error that prevented reading it.
type FetchedNode struct {
	ID        uint32
	Coords    []float32 // nil when DiskPQ is on; see Codes
	Codes     []byte    // PQ codes for this node, when coords on disk are PQ-compressed
	Neighbors []uint32
	Err       error
}

// NodeSource fetches node records (coordinates and adjacency) for a
// batch of ids not already present in the warm cache. It abstracts over
// the packed on-disk layout (C3, sector-aligned reads via C1) and the
// partitioned-graph layout (C6) so the search core is agnostic to which
// is in use.
type NodeSource interface {
	FetchNodes(ioCtx int, ids []uint32) []FetchedNode
}

// CacheNode is the warm-cache entry shape beam needs: exact coordinates
// and the neighbor list, so a cache hit both skips an I/O and supplies
// an exact (non-PQ) distance for the re-ranking step.
type CacheNode struct {
	Coords    []float32
	Neighbors []uint32
}

// Cache is the node/neighbor warm cache (C5).
type Cache interface {
	Get(id uint32) (CacheNode, bool)
}

// CodeSource looks up a point's resident PQ code by id, independent of
// whatever NodeSource returns (the compressed code table for all N
// points is kept resident in memory per the data model).
type CodeSource interface {
	Code(id uint32) []byte
}

// Filter is the label-acceptance predicate for filtered search (C9).
type Filter interface {
	Accepts(id uint32) bool
}

// EmbeddingFetcher is the embedding client contract (C7) the recompute
// and deferred-fetch modes use to replace PQ estimates with exact
// distances.
type EmbeddingFetcher interface {
	Fetch(threadKey int, nodeIDs []uint32) ([][]float32, error)
}

// ReorderSource reads full-precision reorder vectors for the trailing
// region of a disk-PQ index, used by the optional reorder pass.
type ReorderSource interface {
	FetchReorderVectors(ids []uint32) ([][]float32, error)
}

// Medoids holds the start-node ids and their exact (non-PQ) centroid
// vectors, used for unfiltered seed selection.
type Medoids struct {
	IDs     []uint32
	Vectors [][]float32
}

// Options is the union of every search-overload's parameters, collapsed
// to one record per the entry-point unification design note.
type Options struct {
	K         int
	L         int
	BeamWidth int
	IOLimit   int // 0 means unlimited

	Filter            Filter
	FilterSeedMedoids []uint32 // seed medoid ids to score when Filter != nil

	UseReorder         bool
	DeferredFetch      bool
	SkipSearchReorder  bool
	RecomputeNeighbors bool
	DedupCache         bool
	PruneRatio         float32
	BatchRecompute     bool
	GlobalPruning      bool
}

// Stats reports per-query diagnostics.
type Stats struct {
	Hops        int
	IOs         int
	CacheHits   int
	CmpCount    int
	OutOfBudget bool
}

// Result is one search's output: parallel slices of ids and distances,
// plus diagnostics.
type Result struct {
	IDs   []uint32
	Dists []float32
	Stats Stats
}

// Candidate re-exports the scratch package's (id, dist) pair so callers
// outside this package don't need to import scratch directly.
type Candidate = scratch.Candidate
