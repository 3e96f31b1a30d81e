// Package partition implements the partitioned-graph reader (C6): an
// alternative layout where graph adjacency lives in a separate file, one
// partition packed per sector, rather than co-located with coordinates.
package partition

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/vecgo/internal/sector"
)

// Table is the decoded <part_prefix>_partition.bin mapping: which ids
// belong to which partition, and the partition each id belongs to.
type Table struct {
	NumChunks      uint64 // C, the replication factor used at build time; carried through, not otherwise interpreted here
	NumPartitions  uint64
	N              uint64
	Partitions     [][]uint32 // Partitions[p] lists the ids co-located in sector p+1
	IDToPartition  []uint32   // IDToPartition[i] is the partition id i belongs to
	positionOf     []map[uint32]int
}

// DecodeTable parses the <part_prefix>_partition.bin file body:
// [C u64, P u64, N u64, for each p: size u32 followed by size u32s of ids, then N u32s of id->partition].
func DecodeTable(buf []byte) (*Table, error) {
	if len(buf) < 24 {
		return nil, fmt.Errorf("partition: table too short: %d bytes", len(buf))
	}

	t := &Table{
		NumChunks:     binary.LittleEndian.Uint64(buf[0:8]),
		NumPartitions: binary.LittleEndian.Uint64(buf[8:16]),
		N:             binary.LittleEndian.Uint64(buf[16:24]),
	}

	off := 24
	t.Partitions = make([][]uint32, t.NumPartitions)

	for p := uint64(0); p < t.NumPartitions; p++ {
		if off+4 > len(buf) {
			return nil, fmt.Errorf("partition: truncated at partition %d size", p)
		}

		size := binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4

		ids := make([]uint32, size)

		for i := uint32(0); i < size; i++ {
			if off+4 > len(buf) {
				return nil, fmt.Errorf("partition: truncated reading partition %d ids", p)
			}

			ids[i] = binary.LittleEndian.Uint32(buf[off : off+4])
			off += 4
		}

		t.Partitions[p] = ids
	}

	t.IDToPartition = make([]uint32, t.N)

	for i := uint64(0); i < t.N; i++ {
		if off+4 > len(buf) {
			return nil, fmt.Errorf("partition: truncated reading id2partition at %d", i)
		}

		t.IDToPartition[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}

	if err := t.validate(); err != nil {
		return nil, err
	}

	t.buildIndex()

	return t, nil
}

func (t *Table) validate() error {
	for i, p := range t.IDToPartition {
		if uint64(p) >= t.NumPartitions {
			return fmt.Errorf("partition: id %d maps to out-of-range partition %d", i, p)
		}
	}

	seen := make([]bool, t.N)

	for p, ids := range t.Partitions {
		for _, id := range ids {
			if uint64(id) >= t.N {
				return fmt.Errorf("partition: partition %d contains out-of-range id %d", p, id)
			}

			if seen[id] {
				return fmt.Errorf("partition: id %d appears in more than one partition", id)
			}

			seen[id] = true

			if t.IDToPartition[id] != uint32(p) {
				return fmt.Errorf("partition: id %d listed in partition %d but id2partition says %d", id, p, t.IDToPartition[id])
			}
		}
	}

	return nil
}

func (t *Table) buildIndex() {
	t.positionOf = make([]map[uint32]int, len(t.Partitions))

	for p, ids := range t.Partitions {
		m := make(map[uint32]int, len(ids))
		for i, id := range ids {
			m[id] = i
		}

		t.positionOf[p] = m
	}
}

// PositionOf returns id's index within its own partition's id list.
func (t *Table) PositionOf(id uint32) (partition uint32, position int, ok bool) {
	if uint64(id) >= t.N {
		return 0, 0, false
	}

	p := t.IDToPartition[id]
	pos, ok := t.positionOf[p][id]

	return p, pos, ok
}

// Header is the decoded sector-0 header of the <part_prefix>_disk_graph.index file.
type Header struct {
	MetaN    uint32
	MetaDim  uint32
	MetaInfo []uint64
}

// DecodeHeader parses [meta_n u32, meta_dim u32, meta_info u64 x meta_n].
func DecodeHeader(sector0 []byte) (Header, error) {
	if len(sector0) < sector.Size {
		return Header{}, fmt.Errorf("partition: header sector too short")
	}

	metaN := binary.LittleEndian.Uint32(sector0[0:4])
	metaDim := binary.LittleEndian.Uint32(sector0[4:8])

	info := make([]uint64, metaN)
	off := 8

	for i := uint32(0); i < metaN; i++ {
		if off+8 > len(sector0) {
			return Header{}, fmt.Errorf("partition: header truncated at meta_info[%d]", i)
		}

		info[i] = binary.LittleEndian.Uint64(sector0[off : off+8])
		off += 8
	}

	return Header{MetaN: metaN, MetaDim: metaDim, MetaInfo: info}, nil
}

// MaxNodeLen is meta_info[3]: the coords+adjacency record length.
func (h Header) MaxNodeLen() uint64 {
	if len(h.MetaInfo) <= 3 {
		return 0
	}

	return h.MetaInfo[3]
}

// Dim is meta_info[1].
func (h Header) Dim() uint64 {
	if len(h.MetaInfo) <= 1 {
		return 0
	}

	return h.MetaInfo[1]
}

// Reader reads adjacency for a node id through the partitioned layout:
// look up its partition, locate its record offset within that partition's
// sector, issue the sector read, and decode degree+neighbors.
type Reader struct {
	io         sector.Reader
	table      *Table
	graphNodeLen int64
}

// NewReader builds a partitioned-graph reader over an already-open sector
// reader for the <part_prefix>_disk_graph.index file.
func NewReader(io sector.Reader, table *Table, graphNodeLen int64) *Reader {
	return &Reader{io: io, table: table, graphNodeLen: graphNodeLen}
}

// ReadNeighbors performs the six-step lookup the partitioned layout
// requires: partition of id, position within it, sector read, byte offset,
// degree-bound check, copy.
func (r *Reader) ReadNeighbors(id uint32, maxDegree int) ([]uint32, error) {
	p, pos, ok := r.table.PositionOf(id)
	if !ok {
		return nil, fmt.Errorf("partition: id %d not found in partition table", id)
	}

	buf := sector.NewAlignedBuffer(1)
	reqs := []sector.Request{{Sector: int64(p) + 1, Count: 1, Buf: buf}}
	r.io.ReadBatch(reqs)

	if reqs[0].Err != nil {
		return nil, reqs[0].Err
	}

	recOff := int64(pos) * r.graphNodeLen
	if recOff+4 > int64(len(buf)) {
		return nil, fmt.Errorf("partition: record for id %d exceeds sector bounds", id)
	}

	degree := binary.LittleEndian.Uint32(buf[recOff : recOff+4])
	if maxDegree > 0 && int(degree) > maxDegree {
		return nil, fmt.Errorf("partition: id %d degree %d exceeds max %d", id, degree, maxDegree)
	}

	need := recOff + 4 + int64(degree)*4
	if need > int64(len(buf)) {
		return nil, fmt.Errorf("partition: neighbor list for id %d overruns sector", id)
	}

	neighbors := make([]uint32, degree)
	for i := range neighbors {
		o := recOff + 4 + int64(i)*4
		neighbors[i] = binary.LittleEndian.Uint32(buf[o : o+4])
	}

	return neighbors, nil
}
