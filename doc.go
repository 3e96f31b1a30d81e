// Package vecgo provides a disk-resident approximate-nearest-neighbor
// search engine for Go, in the DiskANN/Vamana family: a sector-aligned
// graph index searched with product-quantization distance estimates
// and an in-memory warm cache, with optional exact re-ranking via a
// trailing reorder region or a remote embedding service.
//
// # Quick Start
//
//	h, err := vecgo.Open(vecgo.Config{
//	    Metric:      distance.MetricL2,
//	    IndexPrefix: "/data/myindex",
//	    NumThreads:  4,
//	    CacheNodes:  100_000,
//	    CacheMode:   diskindex.CacheModeBFS,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Close()
//
//	res, err := h.Search(query, vecgo.SearchOptions{K: 10, L: 100, BeamWidth: 4})
//
// # Index Layout
//
// An index lives under a filesystem prefix: a sector-aligned primary
// file holding packed coordinates and graph adjacency, a PQ pivots
// file and a resident PQ code table, and a handful of auxiliary files
// (medoids, centroids, labels). The partitioned layout splits graph
// adjacency into a separate file so the primary file can be swapped
// for a disk-PQ-only variant without touching the graph.
//
// # Search Modes
//
// SearchOptions collapses every search variant (plain, filtered,
// io-limited, range) into one options record: label filtering,
// deferred-fetch and recompute-neighbors re-ranking via an optional
// embedding service, global pruning, and prune-ratio-bounded
// candidate retention are all opt-in fields rather than separate
// entry points.
//
// # Errors
//
// Every returned error except ErrClosed carries a Kind (CorruptIndex,
// UnknownLabel, IoFailure, FetchError, OutOfBudget, BadArgument); use
// IsKind to branch on it. Load-time errors are always fatal. Per-query errors
// (unknown label, bad argument) fail only that query; per-sector read
// failures are recovered locally by eliding the node from candidacy.
package vecgo
