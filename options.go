package vecgo

import "log/slog"

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Open's behavior.
//
// Breaking changes are expected while Vecgo is pre-release.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecgo.BasicMetricsCollector{}
//	h, _ := vecgo.Open(cfg, vecgo.WithMetricsCollector(metrics))
//	// ... use h ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, Avg IOs: %d\n", stats.SearchCount, stats.SearchAvgIOs)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vecgo.NewJSONLogger(slog.LevelInfo)
//	h, _ := vecgo.Open(cfg, vecgo.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// SearchOptions is the union of every search-overload's parameters
// (plain, filtered, io-limited), collapsed to one record per the
// entry-point unification design note: the four underlying entry points
// differ only by which of these defaults they leave at zero/false.
type SearchOptions struct {
	// K is the number of nearest neighbors to return.
	K int
	// L is raised to K when smaller and passed on to the engine, which
	// does not read it: the beam-search frontier's capacity is the
	// QueueCapacity the index was opened with (200 by default).
	L int
	// BeamWidth is how many unexpanded candidates are expanded per
	// iteration. Rejected with a BadArgument error if it would overrun
	// the scratch pool's reserved sector-read arena.
	BeamWidth int
	// IOLimit caps the number of node reads a query may issue; 0 means
	// unlimited. Hitting the limit sets Stats.OutOfBudget rather than
	// failing the query.
	IOLimit int

	// Label, if non-empty, restricts results to points carrying this
	// label (or the universal label). Resolving an unknown label fails
	// the query with a KindUnknownLabel error.
	Label string

	// UseReorder re-ranks disk-PQ candidates against the trailing
	// full-precision reorder region before returning the top-k.
	UseReorder bool
	// DeferredFetch replaces PQ-estimated distances with exact
	// distances fetched from the embedding client before ranking;
	// a fetch failure is fatal to the query in this mode.
	DeferredFetch bool
	// SkipSearchReorder disables exact re-ranking mid-search, relying
	// on PQ distances alone until the final reorder pass (if any).
	SkipSearchReorder bool
	// RecomputeNeighbors fetches exact distances for a node's expanded
	// neighbors rather than trusting PQ estimates; a fetch failure
	// degrades to PQ distances rather than failing the query.
	RecomputeNeighbors bool
	// DedupCache keeps a per-query memo of the exact distances
	// RecomputeNeighbors fetched; in the partitioned layout an expanded
	// node's own distance is then taken from that memo when present.
	DedupCache bool
	// PruneRatio, when RecomputeNeighbors is set, trims each expanded
	// node's neighbor list to its closest max(10, ⌊(1−PruneRatio)·degree⌋)
	// by PQ distance before recomputation; 0 disables pruning.
	PruneRatio float32
	// BatchRecompute batches RecomputeNeighbors fetches across a full
	// beam iteration instead of one fetch per neighbor. DeferredFetch
	// always fetches in one batch after the traversal.
	BatchRecompute bool
	// GlobalPruning retains every visited neighbor in a persistent
	// priority queue across iterations instead of bounding it to the
	// current beam. See DESIGN.md for the documented unbounded-growth
	// caveat this carries over from the source algorithm.
	GlobalPruning bool
}
