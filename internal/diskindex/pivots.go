package diskindex

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/hupe1980/vecgo/internal/pqtable"
)

// pivotsFile is this project's own binary layout for `<prefix>_pq_pivots.bin`:
// the spec only prescribes its logical contents (a codebook per chunk, an
// optional rotation matrix, optional per-dimension centering), not a byte
// layout, so the encoding below is this loader's own format.
//
//	u32 dim
//	u32 numChunks
//	u32 hasRotation (0 or 1)
//	u32 hasCentering (0 or 1)
//	(numChunks+1) x u32   chunk offsets
//	numChunks x (256*chunkDim) x f32   codebooks, chunk-major
//	[dim*dim x f32]                     rotation, row-major, if hasRotation
//	[dim x f32]                         centering, if hasCentering
func readPQPivots(path string) (*pqtable.Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(raw) < 16 {
		return nil, fmt.Errorf("diskindex: %s too short for a pivots header", path)
	}

	dim := int(binary.LittleEndian.Uint32(raw[0:4]))
	numChunks := int(binary.LittleEndian.Uint32(raw[4:8]))
	hasRotation := binary.LittleEndian.Uint32(raw[8:12]) != 0
	hasCentering := binary.LittleEndian.Uint32(raw[12:16]) != 0

	off := 16

	chunkOffset := make([]int, numChunks+1)
	for i := 0; i <= numChunks; i++ {
		if off+4 > len(raw) {
			return nil, fmt.Errorf("diskindex: %s truncated reading chunk offsets", path)
		}

		chunkOffset[i] = int(binary.LittleEndian.Uint32(raw[off : off+4]))
		off += 4
	}

	table, err := pqtable.New(dim, chunkOffset)
	if err != nil {
		return nil, fmt.Errorf("diskindex: %s: %w", path, err)
	}

	for c := 0; c < numChunks; c++ {
		chunkDim := chunkOffset[c+1] - chunkOffset[c]
		n := pqtable.NumCentroids * chunkDim

		centroids := make([]float32, n)
		for i := 0; i < n; i++ {
			if off+4 > len(raw) {
				return nil, fmt.Errorf("diskindex: %s truncated reading chunk %d codebook", path, c)
			}

			centroids[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off : off+4]))
			off += 4
		}

		if err := table.SetCodebook(c, centroids); err != nil {
			return nil, fmt.Errorf("diskindex: %s: %w", path, err)
		}
	}

	if hasRotation {
		rotation := make([][]float32, dim)

		for r := 0; r < dim; r++ {
			row := make([]float32, dim)

			for c := 0; c < dim; c++ {
				if off+4 > len(raw) {
					return nil, fmt.Errorf("diskindex: %s truncated reading rotation", path)
				}

				row[c] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off : off+4]))
				off += 4
			}

			rotation[r] = row
		}

		if err := table.SetRotation(rotation); err != nil {
			return nil, fmt.Errorf("diskindex: %s: %w", path, err)
		}
	}

	if hasCentering {
		center := make([]float32, dim)

		for i := 0; i < dim; i++ {
			if off+4 > len(raw) {
				return nil, fmt.Errorf("diskindex: %s truncated reading centering", path)
			}

			center[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off : off+4]))
			off += 4
		}

		if err := table.SetCentering(center); err != nil {
			return nil, fmt.Errorf("diskindex: %s: %w", path, err)
		}
	}

	return table, nil
}
