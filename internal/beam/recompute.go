package beam

import (
	"errors"
	"sort"

	"github.com/hupe1980/vecgo/distance"
	"github.com/hupe1980/vecgo/internal/math32"
	"github.com/hupe1980/vecgo/internal/scratch"
)

var errNoEmbeddingClient = errors.New("beam: recompute/deferred-fetch requested but no embedding client is configured")

// recomputeOne replaces a single neighbor's PQ estimate with an exact
// distance fetched from the embedding service, memoizing it when
// dedup_cache is on.
func (e *Engine) recomputeOne(slot *scratch.Slot, id uint32, qm []float32, opts Options) (float32, error) {
	if e.cfg.Embed == nil {
		return 0, errNoEmbeddingClient
	}

	vecs, err := e.cfg.Embed.Fetch(slot.EmbedKey, []uint32{id})
	if err != nil {
		return 0, err
	}

	pre := distance.Preprocess(e.cfg.Metric, vecs[0], e.cfg.MaxBaseNorm)
	d := math32.SquaredL2(qm, pre)

	if opts.DedupCache {
		slot.Memo[id] = d
	}

	return d, nil
}

// insertBatchRecompute defers exact-scoring of every surviving neighbor
// across a beam iteration to a single embedding fetch, falling back to
// the PQ estimate for the whole batch on a transient fetch failure.
func (e *Engine) insertBatchRecompute(slot *scratch.Slot, ids []uint32, pqFallback []float32, qm []float32, opts Options) {
	if e.cfg.Embed == nil {
		for i, id := range ids {
			slot.Queue.Insert(id, pqFallback[i])
		}

		return
	}

	vecs, err := e.cfg.Embed.Fetch(slot.EmbedKey, ids)
	if err != nil {
		for i, id := range ids {
			slot.Queue.Insert(id, pqFallback[i])
		}

		return
	}

	for i, id := range ids {
		pre := distance.Preprocess(e.cfg.Metric, vecs[i], e.cfg.MaxBaseNorm)
		d := math32.SquaredL2(qm, pre)

		if opts.DedupCache {
			slot.Memo[id] = d
		}

		slot.Queue.Insert(id, d)
	}
}

// deferredRerank fetches embeddings for every id accumulated in F in
// one batch and replaces their placeholder distances with exact ones.
// Unlike the recompute modes, a failure here is fatal: the whole
// ranking depends on it.
func (e *Engine) deferredRerank(slot *scratch.Slot, qm []float32, opts Options) error {
	if len(slot.F) == 0 {
		return nil
	}

	if e.cfg.Embed == nil {
		return errNoEmbeddingClient
	}

	ids := make([]uint32, len(slot.F))
	for i, c := range slot.F {
		ids[i] = c.ID
	}

	vecs, err := e.cfg.Embed.Fetch(slot.EmbedKey, ids)
	if err != nil {
		return err
	}

	for i := range slot.F {
		pre := distance.Preprocess(e.cfg.Metric, vecs[i], e.cfg.MaxBaseNorm)
		slot.F[i].Dist = math32.SquaredL2(qm, pre)
	}

	return nil
}

// reorderPass re-scores the top k*3 of F from the trailing full-
// precision reorder region, valid only when the index's resident
// coordinates are disk-PQ compressed.
func (e *Engine) reorderPass(slot *scratch.Slot, qm []float32, opts Options) {
	sort.Slice(slot.F, func(i, j int) bool { return slot.F[i].Dist < slot.F[j].Dist })

	n := opts.K * 3
	if n > len(slot.F) {
		n = len(slot.F)
	}

	if n == 0 {
		return
	}

	ids := make([]uint32, n)
	for i := 0; i < n; i++ {
		ids[i] = slot.F[i].ID
	}

	vecs, err := e.cfg.Reorder.FetchReorderVectors(ids)
	if err != nil {
		return
	}

	for i := 0; i < n; i++ {
		slot.F[i].Dist = math32.SquaredL2(qm, vecs[i])
	}
}
