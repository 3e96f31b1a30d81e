package vecgo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/vecgo/core"
	"github.com/hupe1980/vecgo/distance"
	"github.com/hupe1980/vecgo/internal/beam"
	"github.com/hupe1980/vecgo/internal/diskindex"
)

// Stats re-exports the beam engine's per-query diagnostics.
type Stats = beam.Stats

// Result is one search's output: parallel id/distance slices plus stats.
type Result struct {
	IDs   []core.LocalID
	Dists []float32
	Stats Stats
}

func toLocalIDs(ids []uint32) []core.LocalID {
	out := make([]core.LocalID, len(ids))
	for i, id := range ids {
		out[i] = core.LocalID(id)
	}

	return out
}

// Config describes how to open a disk index, mirroring the
// language-neutral `open(...)` surface.
type Config struct {
	Metric          distance.Metric
	IndexPrefix     string
	PQPrefix        string // defaults to IndexPrefix if empty
	PartitionPrefix string // empty disables the partitioned layout

	NumThreads    int
	CacheNodes    int
	CacheMode     diskindex.CacheMode
	EmbeddingPort int // 0 disables the embedding client

	QueueCapacity int
	BeamWidth     int
}

// Handle is an open, query-ready index. Concurrent Search/BatchSearch/
// RangeSearch calls are safe; Close must only be called once, after
// every in-flight query has returned.
type Handle struct {
	mu     sync.RWMutex
	idx    *diskindex.Index
	closed bool
	opts   options
}

// Open loads an index per cfg and returns a ready-to-query Handle.
// Every load-time error is returned as a KindCorruptIndex *Error wrapping
// the underlying cause; the handle is never returned alongside an error.
func Open(cfg Config, optFns ...Option) (*Handle, error) {
	o := applyOptions(optFns)
	start := time.Now()

	idx, err := diskindex.Open(diskindex.Config{
		Metric:          cfg.Metric,
		IndexPrefix:     cfg.IndexPrefix,
		PQPrefix:        cfg.PQPrefix,
		PartitionPrefix: cfg.PartitionPrefix,
		NumThreads:      cfg.NumThreads,
		CacheNodes:      cfg.CacheNodes,
		CacheMode:       cfg.CacheMode,
		EmbeddingPort:   cfg.EmbeddingPort,
		QueueCapacity:   cfg.QueueCapacity,
		BeamWidth:       cfg.BeamWidth,
	})

	n := uint64(0)
	if idx != nil {
		n = idx.N()
	}

	o.logger.LogOpen(context.Background(), cfg.IndexPrefix, n, err)
	o.metricsCollector.RecordOpen(n, time.Since(start), err)

	if err != nil {
		return nil, newError(KindCorruptIndex, err, "open %q", cfg.IndexPrefix)
	}

	return &Handle{idx: idx, opts: o}, nil
}

// Close releases every file, mapping, and socket the handle holds.
// Safe to call once; a second call returns ErrClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	h.closed = true
	err := h.idx.Close()

	h.opts.logger.LogClose(context.Background(), err)
	h.opts.metricsCollector.RecordClose(err)

	return err
}

func (h *Handle) toBeamOptions(opts SearchOptions) (beam.Options, error) {
	if opts.K <= 0 {
		return beam.Options{}, newError(KindBadArgument, nil, "k must be positive, got %d", opts.K)
	}

	l := opts.L
	if l < opts.K {
		l = opts.K
	}

	beamWidth := opts.BeamWidth
	if beamWidth <= 0 {
		beamWidth = 1
	}

	bo := beam.Options{
		K:                  opts.K,
		L:                  l,
		BeamWidth:          beamWidth,
		IOLimit:            opts.IOLimit,
		UseReorder:         opts.UseReorder,
		DeferredFetch:      opts.DeferredFetch,
		SkipSearchReorder:  opts.SkipSearchReorder,
		RecomputeNeighbors: opts.RecomputeNeighbors,
		DedupCache:         opts.DedupCache,
		PruneRatio:         opts.PruneRatio,
		BatchRecompute:     opts.BatchRecompute,
		GlobalPruning:      opts.GlobalPruning,
	}

	if opts.Label != "" {
		h.mu.RLock()
		labelID, err := h.idx.Labels.Resolve(opts.Label)
		h.mu.RUnlock()

		if err != nil {
			return beam.Options{}, newError(KindUnknownLabel, err, "resolve label %q", opts.Label)
		}

		bo.Filter = h.idx.Filter(labelID)
		bo.FilterSeedMedoids = h.idx.Labels.SeedMedoids(labelID)
	}

	return bo, nil
}

// Search runs one query against the index and returns its k nearest
// neighbors per opts.
func (h *Handle) Search(query []float32, opts SearchOptions) (Result, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return Result{}, ErrClosed
	}

	start := time.Now()

	bo, err := h.toBeamOptions(opts)
	if err != nil {
		h.opts.logger.LogSearch(context.Background(), opts.K, Stats{}, err)
		h.opts.metricsCollector.RecordSearch(Stats{}, time.Since(start), err)

		return Result{}, err
	}

	res, err := h.idx.Engine.Search(query, bo)

	h.opts.logger.LogSearch(context.Background(), opts.K, res.Stats, err)
	h.opts.metricsCollector.RecordSearch(res.Stats, time.Since(start), err)

	if err != nil {
		return Result{}, translateBeamError(err)
	}

	return Result{IDs: toLocalIDs(res.IDs), Dists: res.Dists, Stats: res.Stats}, nil
}

// BatchSearch runs queries concurrently across numThreads workers and
// returns one Result per query, in the same order as queries.
func (h *Handle) BatchSearch(queries [][]float32, opts SearchOptions, numThreads int) ([]Result, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil, ErrClosed
	}

	start := time.Now()

	bo, err := h.toBeamOptions(opts)
	if err != nil {
		h.opts.logger.LogBatchSearch(context.Background(), len(queries), numThreads, err)
		return nil, err
	}

	if numThreads <= 0 {
		numThreads = 1
	}

	results := make([]Result, len(queries))
	errs := make([]error, len(queries))

	var wg sync.WaitGroup

	sem := make(chan struct{}, numThreads)

	for i, q := range queries {
		wg.Add(1)

		sem <- struct{}{}

		go func(i int, q []float32) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := h.idx.Engine.Search(q, bo)
			if err != nil {
				errs[i] = translateBeamError(err)
				return
			}

			results[i] = Result{IDs: toLocalIDs(res.IDs), Dists: res.Dists, Stats: res.Stats}
		}(i, q)
	}

	wg.Wait()

	var firstErr error
	for _, e := range errs {
		if e != nil {
			firstErr = e
			break
		}
	}

	h.opts.logger.LogBatchSearch(context.Background(), len(queries), numThreads, firstErr)
	h.opts.metricsCollector.RecordSearch(Stats{}, time.Since(start), firstErr)

	if firstErr != nil {
		return nil, firstErr
	}

	return results, nil
}

// RangeOptions configures an expanding-L range search.
type RangeOptions struct {
	Range   float32 // keep only results with distance <= Range
	MinL    int
	MaxL    int
	MinBeam int
	MaxBeam int // defaults to 100
	Base    SearchOptions
}

// RangeSearch runs an expanding-candidate-list search, returning every
// result within Range rather than a fixed top-k.
func (h *Handle) RangeSearch(query []float32, ropts RangeOptions) (Result, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return Result{}, ErrClosed
	}

	start := time.Now()

	bo, err := h.toBeamOptions(ropts.Base)
	if err != nil {
		h.opts.logger.LogRangeSearch(context.Background(), ropts.Range, 0, err)
		return Result{}, err
	}

	res, err := h.idx.Engine.RangeSearch(query, beam.RangeOptions{
		Range:   ropts.Range,
		MinL:    ropts.MinL,
		MaxL:    ropts.MaxL,
		MinBeam: ropts.MinBeam,
		MaxBeam: ropts.MaxBeam,
		Base:    bo,
	})

	n := len(res.IDs)

	h.opts.logger.LogRangeSearch(context.Background(), ropts.Range, n, err)
	h.opts.metricsCollector.RecordSearch(res.Stats, time.Since(start), err)

	if err != nil {
		return Result{}, translateBeamError(err)
	}

	return Result{IDs: toLocalIDs(res.IDs), Dists: res.Dists, Stats: res.Stats}, nil
}

// N returns the point count the index was loaded for.
func (h *Handle) N() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.idx.N()
}

// Metric returns the handle's configured distance metric.
func (h *Handle) Metric() distance.Metric {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.idx.Metric()
}

func translateBeamError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, beam.ErrBadArgument) {
		return newError(KindBadArgument, err, "search")
	}

	var fetchErr *beam.ErrDeferredFetchFailed
	if errors.As(err, &fetchErr) {
		return newError(KindFetchError, err, "deferred fetch")
	}

	return newError(KindIoFailure, err, "search")
}
