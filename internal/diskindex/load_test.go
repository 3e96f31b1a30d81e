package diskindex

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/vecgo/distance"
	"github.com/hupe1980/vecgo/internal/beam"
	"github.com/hupe1980/vecgo/internal/pqtable"
	"github.com/hupe1980/vecgo/internal/sector"
	"github.com/stretchr/testify/require"
)

// writeFloat32Pivots writes a minimal `_pq_pivots.bin` fixture for a
// single-chunk, identity-ish codebook: chunk 0's first len(points)
// centroids equal points exactly, the rest are zero.
func writeFloat32Pivots(t *testing.T, path string, dim int, points [][]float32) {
	t.Helper()

	buf := make([]byte, 0, 16+8+pqtable.NumCentroids*dim*4)

	putU32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	putF32 := func(v float32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		buf = append(buf, b[:]...)
	}

	putU32(uint32(dim))
	putU32(1) // numChunks
	putU32(0) // hasRotation
	putU32(0) // hasCentering
	putU32(0) // chunkOffset[0]
	putU32(uint32(dim)) // chunkOffset[1]

	for k := 0; k < pqtable.NumCentroids; k++ {
		if k < len(points) {
			for _, v := range points[k] {
				putF32(v)
			}
		} else {
			for d := 0; d < dim; d++ {
				putF32(0)
			}
		}
	}

	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

// writeDiskIndex writes a minimal `_disk.index` fixture: a header sector
// followed by one whole sector per node, float32 coordinates.
func writeDiskIndex(t *testing.T, path string, points [][]float32, neighbors [][]uint32, maxDegree int) {
	t.Helper()

	dim := len(points[0])
	bytesPerPoint := int64(dim) * 4
	maxNodeLen := uint64(bytesPerPoint) + 4 + uint64(maxDegree)*4

	header := sector.Header{
		N:          uint64(len(points)),
		Dim:        uint64(dim),
		MedoidID:   0,
		MaxNodeLen: maxNodeLen,
	}

	layout, err := sector.NewLayout(header, 4)
	require.NoError(t, err)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write(header.Encode())
	require.NoError(t, err)

	for i, p := range points {
		rec := layout.EncodeNode(sector.EncodeFloat32AsBytes(p), neighbors[i])

		sectorBuf := make([]byte, sector.Size)
		copy(sectorBuf, rec)

		_, err = f.Write(sectorBuf)
		require.NoError(t, err)
	}
}

func TestOpen_PackedFloatLayout(t *testing.T) {
	dir := t.TempDir()

	points := [][]float32{
		{0, 0},
		{1, 0},
		{0, 1},
		{1, 1},
	}
	neighbors := [][]uint32{
		{1, 2},
		{0, 3},
		{0, 3},
		{1, 2},
	}

	indexPrefix := filepath.Join(dir, "idx")
	pqPrefix := filepath.Join(dir, "pq")

	writeDiskIndex(t, indexPrefix+"_disk.index", points, neighbors, 2)
	writeFloat32Pivots(t, pqPrefix+"_pq_pivots.bin", 2, points)
	require.NoError(t, os.WriteFile(pqPrefix+"_pq_compressed.bin", []byte{0, 1, 2, 3}, 0o644))

	idx, err := Open(Config{
		Metric:        distance.MetricL2,
		IndexPrefix:   indexPrefix,
		PQPrefix:      pqPrefix,
		NumThreads:    1,
		QueueCapacity: 10,
		BeamWidth:     4,
	})
	require.NoError(t, err)
	defer idx.Close()

	require.Equal(t, uint64(4), idx.N())
	require.Equal(t, distance.MetricL2, idx.Metric())

	res, err := idx.Engine.Search([]float32{1, 1}, beam.Options{K: 1, L: 10, BeamWidth: 4})
	require.NoError(t, err)
	require.Len(t, res.IDs, 1)
	require.Equal(t, uint32(3), res.IDs[0])
}

func TestOpen_MissingPrimaryFile(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(Config{
		Metric:      distance.MetricL2,
		IndexPrefix: filepath.Join(dir, "missing"),
	})
	require.Error(t, err)
}

func TestOpen_OversizePQChunksRejected(t *testing.T) {
	dir := t.TempDir()

	points := [][]float32{{0, 0}, {1, 0}}
	neighbors := [][]uint32{{1}, {0}}

	indexPrefix := filepath.Join(dir, "idx")
	pqPrefix := filepath.Join(dir, "pq")

	writeDiskIndex(t, indexPrefix+"_disk.index", points, neighbors, 1)

	// A valid, decodable pivots file with more chunks than MaxPQChunks
	// must be rejected at load time, before any codes file is even opened.
	numChunks := MaxPQChunks + 1
	dim := numChunks

	buf := make([]byte, 0, 16+4*(numChunks+1)+4*numChunks*pqtable.NumCentroids)

	putU32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}

	putU32(uint32(dim))
	putU32(uint32(numChunks))
	putU32(0) // hasRotation
	putU32(0) // hasCentering

	for i := 0; i <= numChunks; i++ {
		putU32(uint32(i))
	}

	for i := 0; i < numChunks*pqtable.NumCentroids; i++ {
		putU32(0) // zero float32, one per centroid scalar (chunkDim=1)
	}

	require.NoError(t, os.WriteFile(pqPrefix+"_pq_pivots.bin", buf, 0o644))

	_, err := Open(Config{
		Metric:      distance.MetricL2,
		IndexPrefix: indexPrefix,
		PQPrefix:    pqPrefix,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds compile-time cap")
}
