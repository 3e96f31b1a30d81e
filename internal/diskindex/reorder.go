package diskindex

import "github.com/hupe1980/vecgo/internal/sector"

// reorderSource reads full-precision vectors from a disk-PQ index's
// trailing reorder region: nVecsPerSector vectors packed per sector,
// starting at startSector.
type reorderSource struct {
	reader         sector.Reader
	startSector    int64
	dim            int
	nVecsPerSector int64
}

func (s *reorderSource) FetchReorderVectors(ids []uint32) ([][]float32, error) {
	out := make([][]float32, len(ids))
	reqs := make([]sector.Request, len(ids))
	bufOf := make([][]byte, len(ids))

	for i, id := range ids {
		sec := s.startSector + int64(id)/s.nVecsPerSector
		buf := sector.NewAlignedBuffer(1)
		bufOf[i] = buf
		reqs[i] = sector.Request{Sector: sec, Count: 1, Buf: buf}
	}

	s.reader.ReadBatch(reqs)

	for i, id := range ids {
		if reqs[i].Err != nil {
			return nil, reqs[i].Err
		}

		pos := int64(id) % s.nVecsPerSector
		off := pos * int64(s.dim) * 4
		out[i] = sector.CoordsAsFloat32(bufOf[i][off:off+int64(s.dim)*4], s.dim)
	}

	return out, nil
}
