// Package pqtable implements the PQ distance table (C2): per-chunk
// codebooks of 256 float32 centroids, an optional rotation matrix and
// per-dimension centering, and the query-conditioned lookup table that the
// beam search core uses to score candidates without touching the base
// vectors. Grounded on the teacher's internal/quantization/pq.go k-means
// trainer, adapted from int8-quantized-with-scale/offset centroids to the
// plain float32 256-centroid codebooks the on-disk PQ pivots file holds.
package pqtable

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/vecgo/internal/math32"
)

// NumCentroids is fixed by the on-disk format: every chunk's codebook has
// exactly 256 centroids so a code fits in one byte.
const NumCentroids = 256

// Table holds per-chunk codebooks plus the optional rotation/centering
// preprocessing the builder may have applied to the base set.
type Table struct {
	dim         int
	numChunks   int
	chunkOffset []int // numChunks+1 entries; chunk c spans [chunkOffset[c], chunkOffset[c+1])

	// codebooks[c] is a flat NumCentroids*chunkDim(c) float32 slice.
	codebooks [][]float32

	center   []float32   // dim entries, subtracted before rotation; nil if absent
	rotation [][]float32 // dim x dim, applied after centering; nil if absent

	trained bool
}

// New creates an untrained table with the given chunk boundaries.
// chunkOffset must have numChunks+1 entries, start at 0, end at dim, and be
// strictly increasing.
func New(dim int, chunkOffset []int) (*Table, error) {
	if dim <= 0 {
		return nil, errors.New("pqtable: dim must be positive")
	}

	if len(chunkOffset) < 2 {
		return nil, errors.New("pqtable: need at least one chunk")
	}

	if chunkOffset[0] != 0 || chunkOffset[len(chunkOffset)-1] != dim {
		return nil, fmt.Errorf("pqtable: chunk offsets must span [0, %d)", dim)
	}

	for i := 1; i < len(chunkOffset); i++ {
		if chunkOffset[i] <= chunkOffset[i-1] {
			return nil, errors.New("pqtable: chunk offsets must be strictly increasing")
		}
	}

	numChunks := len(chunkOffset) - 1

	return &Table{
		dim:         dim,
		numChunks:   numChunks,
		chunkOffset: append([]int{}, chunkOffset...),
		codebooks:   make([][]float32, numChunks),
	}, nil
}

// NewEvenChunks is the common case: dim split into n equal-width chunks.
func NewEvenChunks(dim, numChunks int) (*Table, error) {
	if numChunks <= 0 || dim%numChunks != 0 {
		return nil, fmt.Errorf("pqtable: dim %d not divisible by numChunks %d", dim, numChunks)
	}

	chunkDim := dim / numChunks
	offsets := make([]int, numChunks+1)
	for i := range offsets {
		offsets[i] = i * chunkDim
	}

	return New(dim, offsets)
}

// SetCentering installs a per-dimension center to subtract before rotation.
func (t *Table) SetCentering(center []float32) error {
	if len(center) != t.dim {
		return fmt.Errorf("pqtable: centering length %d != dim %d", len(center), t.dim)
	}

	t.center = center

	return nil
}

// SetRotation installs a dim x dim rotation matrix applied after centering.
func (t *Table) SetRotation(rotation [][]float32) error {
	if len(rotation) != t.dim {
		return fmt.Errorf("pqtable: rotation rows %d != dim %d", len(rotation), t.dim)
	}

	for _, row := range rotation {
		if len(row) != t.dim {
			return errors.New("pqtable: rotation must be square")
		}
	}

	t.rotation = rotation

	return nil
}

// NumChunks returns the chunk count (n_chunks in the spec).
func (t *Table) NumChunks() int { return t.numChunks }

// Dim returns the uncompressed vector dimensionality.
func (t *Table) Dim() int { return t.dim }

// IsTrained reports whether codebooks have been trained or loaded.
func (t *Table) IsTrained() bool { return t.trained }

func (t *Table) chunkDim(c int) int {
	return t.chunkOffset[c+1] - t.chunkOffset[c]
}

// Train runs k-means per chunk over the given (already centered/rotated, if
// applicable) training vectors.
func (t *Table) Train(vectors [][]float32, maxIters int) error {
	if len(vectors) == 0 {
		return errors.New("pqtable: no training vectors")
	}

	if len(vectors[0]) != t.dim {
		return fmt.Errorf("pqtable: training vector dim %d != %d", len(vectors[0]), t.dim)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	errs := make([]error, t.numChunks)

	for c := 0; c < t.numChunks; c++ {
		wg.Add(1)
		sem <- struct{}{}

		go func(c int) {
			defer wg.Done()
			defer func() { <-sem }()

			start, end := t.chunkOffset[c], t.chunkOffset[c+1]
			centroids, err := kmeans(vectors, start, end, NumCentroids, maxIters)
			if err != nil {
				errs[c] = err
				return
			}

			t.codebooks[c] = centroids
		}(c)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	t.trained = true

	return nil
}

// SetCodebook installs a chunk's codebook directly, for loading from the
// on-disk PQ pivots file. centroids must be NumCentroids*chunkDim(c) long.
func (t *Table) SetCodebook(c int, centroids []float32) error {
	if c < 0 || c >= t.numChunks {
		return fmt.Errorf("pqtable: chunk %d out of range", c)
	}

	want := NumCentroids * t.chunkDim(c)
	if len(centroids) != want {
		return fmt.Errorf("pqtable: chunk %d codebook length %d != %d", c, len(centroids), want)
	}

	t.codebooks[c] = centroids

	allSet := true
	for _, cb := range t.codebooks {
		if cb == nil {
			allSet = false
			break
		}
	}

	t.trained = allSet

	return nil
}

// Codebook returns chunk c's flat NumCentroids*chunkDim(c) centroid table.
func (t *Table) Codebook(c int) []float32 {
	return t.codebooks[c]
}

// PreprocessQuery subtracts the per-dimension center and applies the
// rotation, if present, returning a new slice (q is never mutated).
func (t *Table) PreprocessQuery(q []float32) ([]float32, error) {
	if len(q) != t.dim {
		return nil, fmt.Errorf("pqtable: query dim %d != %d", len(q), t.dim)
	}

	out := make([]float32, t.dim)
	copy(out, q)

	if t.center != nil {
		for i := range out {
			out[i] -= t.center[i]
		}
	}

	if t.rotation != nil {
		rotated := make([]float32, t.dim)
		for i, row := range t.rotation {
			rotated[i] = math32.Dot(row, out)
		}

		out = rotated
	}

	return out, nil
}

// DistanceTable is the query-conditioned table: table[c*NumCentroids+k] is
// the squared L2 distance from query chunk c to centroid k of that chunk.
type DistanceTable struct {
	numChunks int
	table     []float32
}

// PopulateChunkDistances computes, for the preprocessed query qPrime, the
// distance from every chunk-subvector to every centroid in that chunk.
func (t *Table) PopulateChunkDistances(qPrime []float32) (DistanceTable, error) {
	if !t.trained {
		return DistanceTable{}, errors.New("pqtable: not trained")
	}

	if len(qPrime) != t.dim {
		return DistanceTable{}, fmt.Errorf("pqtable: query dim %d != %d", len(qPrime), t.dim)
	}

	table := make([]float32, t.numChunks*NumCentroids)

	for c := 0; c < t.numChunks; c++ {
		start, end := t.chunkOffset[c], t.chunkOffset[c+1]
		sub := qPrime[start:end]
		dim := end - start
		codebook := t.codebooks[c]
		out := table[c*NumCentroids : (c+1)*NumCentroids]

		for k := 0; k < NumCentroids; k++ {
			centroid := codebook[k*dim : (k+1)*dim]
			out[k] = math32.SquaredL2(sub, centroid)
		}
	}

	return DistanceTable{numChunks: t.numChunks, table: table}, nil
}

// Lookup sums the 256-way selected table entries across chunks for one
// point's PQ code: the asymmetric-distance-computation (ADC) estimate.
func (dt DistanceTable) Lookup(codes []byte) (float32, error) {
	if len(codes) != dt.numChunks {
		return 0, fmt.Errorf("pqtable: code length %d != %d chunks", len(codes), dt.numChunks)
	}

	var sum float32
	for c, code := range codes {
		sum += dt.table[c*NumCentroids+int(code)]
	}

	return sum, nil
}

// LookupBatch fills the caller-supplied dists[i] with Lookup(codes[i]) for
// every point; it allocates nothing itself.
func (dt DistanceTable) LookupBatch(codes [][]byte, dists []float32) error {
	if len(dists) < len(codes) {
		return fmt.Errorf("pqtable: dists buffer too small: have %d need %d", len(dists), len(codes))
	}

	for i, code := range codes {
		d, err := dt.Lookup(code)
		if err != nil {
			return err
		}

		dists[i] = d
	}

	return nil
}

// Decode reconstructs an approximate vector from PQ codes, concatenating
// the selected centroid from every chunk.
func (t *Table) Decode(codes []byte) ([]float32, error) {
	if !t.trained {
		return nil, errors.New("pqtable: not trained")
	}

	if len(codes) != t.numChunks {
		return nil, errors.New("pqtable: invalid code length")
	}

	out := make([]float32, t.dim)

	for c, code := range codes {
		start, end := t.chunkOffset[c], t.chunkOffset[c+1]
		dim := end - start
		centroid := t.codebooks[c][int(code)*dim : (int(code)+1)*dim]
		copy(out[start:end], centroid)
	}

	return out, nil
}

// Encode quantizes vec into PQ codes, one per chunk.
func (t *Table) Encode(vec []float32) ([]byte, error) {
	if !t.trained {
		return nil, errors.New("pqtable: not trained")
	}

	if len(vec) != t.dim {
		return nil, errors.New("pqtable: vector dim mismatch")
	}

	codes := make([]byte, t.numChunks)

	for c := 0; c < t.numChunks; c++ {
		start, end := t.chunkOffset[c], t.chunkOffset[c+1]
		sub := vec[start:end]
		dim := end - start
		codebook := t.codebooks[c]

		best := 0
		bestDist := float32(math.MaxFloat32)

		for k := 0; k < NumCentroids; k++ {
			centroid := codebook[k*dim : (k+1)*dim]
			d := math32.SquaredL2(sub, centroid)

			if d < bestDist {
				bestDist = d
				best = k
			}
		}

		codes[c] = byte(best)
	}

	return codes, nil
}

// L2Distance computes the exact-from-code squared L2 distance between a
// raw query and a point's PQ codes by decoding and comparing. Used for
// "disk PQ" mode, where coords on disk are PQ codes rather than raw
// vectors.
func (t *Table) L2Distance(q []float32, codes []byte) (float32, error) {
	decoded, err := t.Decode(codes)
	if err != nil {
		return 0, err
	}

	if len(q) != len(decoded) {
		return 0, fmt.Errorf("pqtable: query dim %d != %d", len(q), len(decoded))
	}

	return math32.SquaredL2(q, decoded), nil
}

// InnerProduct computes the exact-from-code inner product between a raw
// query and a point's PQ codes.
func (t *Table) InnerProduct(q []float32, codes []byte) (float32, error) {
	decoded, err := t.Decode(codes)
	if err != nil {
		return 0, err
	}

	if len(q) != len(decoded) {
		return 0, fmt.Errorf("pqtable: query dim %d != %d", len(q), len(decoded))
	}

	return math32.Dot(q, decoded), nil
}

// kmeans runs k-means++ initialization followed by Lloyd's iterations on
// the [start,end) sub-range of each training vector, returning a flat
// k*dim centroid table.
func kmeans(vectors [][]float32, start, end, k, maxIters int) ([]float32, error) {
	dim := end - start
	if dim <= 0 {
		return nil, errors.New("pqtable: empty chunk range")
	}

	centroids := initCentroidsPP(vectors, start, end, k)

	assignments := make([]int, len(vectors))
	numWorkers := runtime.GOMAXPROCS(0)

	for iter := 0; iter < maxIters; iter++ {
		if !assignClusters(vectors, centroids, assignments, start, end, numWorkers) {
			break
		}

		updateCentroids(vectors, centroids, assignments, start, end, k, dim)
	}

	return centroids, nil
}

func initCentroidsPP(vectors [][]float32, start, end, k int) []float32 {
	dim := end - start
	centroids := make([]float32, k*dim)

	if len(vectors) < k {
		for i := 0; i < k; i++ {
			copy(centroids[i*dim:], vectors[i%len(vectors)][start:end])
		}

		return centroids
	}

	firstIdx := rand.Intn(len(vectors)) //nolint:gosec // cluster init, not security sensitive
	copy(centroids[0:dim], vectors[firstIdx][start:end])

	minDistSq := make([]float32, len(vectors))

	var sum float32

	for i, vec := range vectors {
		d := math32.SquaredL2(vec[start:end], centroids[0:dim])
		minDistSq[i] = d
		sum += d
	}

	for c := 1; c < k; c++ {
		if sum == 0 {
			idx := rand.Intn(len(vectors)) //nolint:gosec
			copy(centroids[c*dim:], vectors[idx][start:end])

			continue
		}

		target := rand.Float32() * sum //nolint:gosec

		var cumsum float32

		chosen := 0

		for i, d := range minDistSq {
			cumsum += d
			if cumsum >= target {
				chosen = i
				break
			}
		}

		copy(centroids[c*dim:], vectors[chosen][start:end])

		sum = 0
		cStart := c * dim

		for i, vec := range vectors {
			d := math32.SquaredL2(vec[start:end], centroids[cStart:cStart+dim])
			if d < minDistSq[i] {
				minDistSq[i] = d
			}

			sum += minDistSq[i]
		}
	}

	return centroids
}

func assignClusters(vectors [][]float32, centroids []float32, assignments []int, start, end, numWorkers int) bool {
	var changed atomic.Bool

	var wg sync.WaitGroup

	chunkSize := (len(vectors) + numWorkers - 1) / numWorkers

	for w := 0; w < numWorkers; w++ {
		lo := w * chunkSize
		hi := lo + chunkSize

		if hi > len(vectors) {
			hi = len(vectors)
		}

		if lo >= hi {
			continue
		}

		wg.Add(1)

		go func(lo, hi int) {
			defer wg.Done()

			dim := end - start
			k := len(centroids) / dim
			localChanged := false

			for i := lo; i < hi; i++ {
				nearest := nearestCentroid(vectors[i][start:end], centroids, dim, k)
				if assignments[i] != nearest {
					assignments[i] = nearest
					localChanged = true
				}
			}

			if localChanged {
				changed.Store(true)
			}
		}(lo, hi)
	}

	wg.Wait()

	return changed.Load()
}

func nearestCentroid(vec []float32, centroids []float32, dim, k int) int {
	best := 0
	bestDist := float32(math.MaxFloat32)

	for i := 0; i < k; i++ {
		c := centroids[i*dim : (i+1)*dim]

		d := math32.SquaredL2(vec, c)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}

	return best
}

func updateCentroids(vectors [][]float32, centroids []float32, assignments []int, start, end, k, dim int) {
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	for i, vec := range vectors {
		cluster := assignments[i]
		counts[cluster]++

		base := cluster * dim
		math32.AddInPlace(sums[base:base+dim], vec[start:end])
	}

	for i := 0; i < k; i++ {
		base := i * dim

		if counts[i] > 0 {
			inv := 1 / float32(counts[i])
			for j := 0; j < dim; j++ {
				centroids[base+j] = sums[base+j] * inv
			}

			continue
		}

		idx := rand.Intn(len(vectors)) //nolint:gosec
		copy(centroids[base:base+dim], vectors[idx][start:end])
	}
}
