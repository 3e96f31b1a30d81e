package diskindex

import (
	"github.com/hupe1980/vecgo/internal/beam"
	"github.com/hupe1980/vecgo/internal/nodecache"
	"github.com/hupe1980/vecgo/internal/partition"
	"github.com/hupe1980/vecgo/internal/sector"
)

// packedSource is a beam.NodeSource over the packed on-disk layout: graph
// adjacency co-located with coordinates in the primary index file (C1+C3).
type packedSource struct {
	reader    sector.Reader
	layout    sector.Layout
	maxDegree int
}

func (s *packedSource) FetchNodes(ioCtx int, ids []uint32) []beam.FetchedNode {
	out := make([]beam.FetchedNode, len(ids))

	reqs := make([]sector.Request, len(ids))
	bufOf := make([][]byte, len(ids))

	for i, id := range ids {
		sectorIdx, count := s.layout.SectorOf(id)
		buf := sector.NewAlignedBuffer(count)
		bufOf[i] = buf
		reqs[i] = sector.Request{Sector: sectorIdx, Count: count, Buf: buf}
	}

	s.reader.ReadBatch(reqs)

	for i, id := range ids {
		if reqs[i].Err != nil {
			out[i] = beam.FetchedNode{ID: id, Err: reqs[i].Err}
			continue
		}

		rec, err := s.layout.DecodeNode(bufOf[i], id, s.maxDegree)
		if err != nil {
			out[i] = beam.FetchedNode{ID: id, Err: err}
			continue
		}

		if s.layout.ElemSize == 4 {
			out[i] = beam.FetchedNode{ID: id, Coords: sector.CoordsAsFloat32(rec.Coords, int(s.layout.Dim)), Neighbors: rec.Neighbors}
		} else {
			// disk-PQ mode: the "coords" on disk are themselves PQ codes.
			codes := make([]byte, len(rec.Coords))
			copy(codes, rec.Coords)
			out[i] = beam.FetchedNode{ID: id, Codes: codes, Neighbors: rec.Neighbors}
		}
	}

	return out
}

// partitionedSource is a beam.NodeSource over the partitioned layout (C6):
// coordinates still come from the primary index file, but adjacency is read
// through a separate partition.Reader.
type partitionedSource struct {
	coordsReader sector.Reader
	layout       sector.Layout
	part         *partition.Reader
	maxDegree    int
}

func (s *partitionedSource) FetchNodes(ioCtx int, ids []uint32) []beam.FetchedNode {
	out := make([]beam.FetchedNode, len(ids))

	reqs := make([]sector.Request, len(ids))
	bufOf := make([][]byte, len(ids))

	for i, id := range ids {
		sectorIdx, count := s.layout.SectorOf(id)
		buf := sector.NewAlignedBuffer(count)
		bufOf[i] = buf
		reqs[i] = sector.Request{Sector: sectorIdx, Count: count, Buf: buf}
	}

	s.coordsReader.ReadBatch(reqs)

	for i, id := range ids {
		if reqs[i].Err != nil {
			out[i] = beam.FetchedNode{ID: id, Err: reqs[i].Err}
			continue
		}

		rec, err := s.layout.DecodeNode(bufOf[i], id, 0)
		if err != nil {
			out[i] = beam.FetchedNode{ID: id, Err: err}
			continue
		}

		neighbors, err := s.part.ReadNeighbors(id, s.maxDegree)
		if err != nil {
			out[i] = beam.FetchedNode{ID: id, Err: err}
			continue
		}

		if s.layout.ElemSize == 4 {
			out[i] = beam.FetchedNode{ID: id, Coords: sector.CoordsAsFloat32(rec.Coords, int(s.layout.Dim)), Neighbors: neighbors}
		} else {
			codes := make([]byte, len(rec.Coords))
			copy(codes, rec.Coords)
			out[i] = beam.FetchedNode{ID: id, Codes: codes, Neighbors: neighbors}
		}
	}

	return out
}

// cacheAdapter adapts *nodecache.Cache to beam.Cache.
type cacheAdapter struct{ c *nodecache.Cache }

func (a cacheAdapter) Get(id uint32) (beam.CacheNode, bool) {
	n, ok := a.c.Get(id)
	if !ok {
		return beam.CacheNode{}, false
	}

	return beam.CacheNode{Coords: n.Coords, Neighbors: n.Neighbors}, true
}

// nodecacheSource adapts a beam.NodeSource into the nodecache.Source
// contract used during BFS/sample cache warmup.
type nodecacheSource struct {
	fetch   func(ids []uint32) []beam.FetchedNode
	n       int
	medoids []uint32
}

func (s *nodecacheSource) ReadNode(id uint32) (nodecache.Node, error) {
	fetched := s.fetch([]uint32{id})
	f := fetched[0]

	if f.Err != nil {
		return nodecache.Node{}, f.Err
	}

	return nodecache.Node{Coords: f.Coords, Neighbors: f.Neighbors}, nil
}

func (s *nodecacheSource) NumNodes() int      { return s.n }
func (s *nodecacheSource) Medoids() []uint32  { return s.medoids }
