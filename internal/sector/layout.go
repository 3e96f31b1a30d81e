package sector

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Header is the decoded form of sector 0 of the disk index file.
type Header struct {
	N               uint64
	Dim             uint64
	MedoidID        uint64
	MaxNodeLen      uint64
	NNodesPerSector uint64 // 0 means a node spans one-or-more whole sectors
	NumFrozen       uint64
	FrozenID        uint64
	HasReorder      uint64

	ReorderStartSector uint64
	NDimsReorder       uint64
	NVecsPerSector     uint64
}

// headerMagicNR and headerMagicNC are the fixed `nr`/`nc` fields every
// header leads with; they exist in the format purely as a sanity check.
const (
	headerMagicNR = uint32(1)
	headerMagicNC = uint32(1)
)

// DecodeHeader parses sector 0 of the disk index file.
func DecodeHeader(sector0 []byte) (Header, error) {
	if len(sector0) < Size {
		return Header{}, fmt.Errorf("sector: header sector too short: %d bytes", len(sector0))
	}

	var h Header

	buf := sector0
	nr := binary.LittleEndian.Uint32(buf[0:4])
	nc := binary.LittleEndian.Uint32(buf[4:8])

	if nr != headerMagicNR || nc != headerMagicNC {
		return Header{}, fmt.Errorf("sector: bad header magic nr=%d nc=%d", nr, nc)
	}

	off := 8
	fields := []*uint64{
		&h.N, &h.Dim, &h.MedoidID, &h.MaxNodeLen, &h.NNodesPerSector,
		&h.NumFrozen, &h.FrozenID, &h.HasReorder,
	}

	for _, f := range fields {
		if off+8 > len(buf) {
			return Header{}, fmt.Errorf("sector: header truncated at offset %d", off)
		}

		*f = binary.LittleEndian.Uint64(buf[off : off+8])
		off += 8
	}

	if h.HasReorder != 0 {
		reorderFields := []*uint64{&h.ReorderStartSector, &h.NDimsReorder, &h.NVecsPerSector}
		for _, f := range reorderFields {
			if off+8 > len(buf) {
				return Header{}, fmt.Errorf("sector: reorder header truncated at offset %d", off)
			}

			*f = binary.LittleEndian.Uint64(buf[off : off+8])
			off += 8
		}
	}

	return h, nil
}

// Encode serializes the header back into a zero-padded 4096-byte sector,
// used by tests that build synthetic fixtures.
func (h Header) Encode() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:4], headerMagicNR)
	binary.LittleEndian.PutUint32(buf[4:8], headerMagicNC)

	off := 8
	fields := []uint64{
		h.N, h.Dim, h.MedoidID, h.MaxNodeLen, h.NNodesPerSector,
		h.NumFrozen, h.FrozenID, h.HasReorder,
	}

	for _, v := range fields {
		binary.LittleEndian.PutUint64(buf[off:off+8], v)
		off += 8
	}

	if h.HasReorder != 0 {
		for _, v := range []uint64{h.ReorderStartSector, h.NDimsReorder, h.NVecsPerSector} {
			binary.LittleEndian.PutUint64(buf[off:off+8], v)
			off += 8
		}
	}

	return buf
}

// Layout is the pure arithmetic over a loaded Header: it maps a node id to
// its owning sector and offers decode helpers over a sector buffer. It does
// no I/O of its own.
type Layout struct {
	N               uint64
	Dim             uint64
	ElemSize        int // bytes per coordinate scalar (4 for f32, 1 for i8/u8)
	MaxNodeLen      uint64
	NNodesPerSector uint64

	sectorsPerNode int64
}

// NewLayout derives a Layout from a decoded Header.
func NewLayout(h Header, elemSize int) (Layout, error) {
	if h.N == 0 {
		return Layout{}, fmt.Errorf("sector: header has N=0")
	}

	l := Layout{
		N:               h.N,
		Dim:             h.Dim,
		ElemSize:        elemSize,
		MaxNodeLen:      h.MaxNodeLen,
		NNodesPerSector: h.NNodesPerSector,
	}

	if l.NNodesPerSector == 0 {
		l.sectorsPerNode = (int64(h.MaxNodeLen) + Size - 1) / Size
		if l.sectorsPerNode < 1 {
			l.sectorsPerNode = 1
		}
	}

	return l, nil
}

// DiskBytesPerPoint is the raw coordinate byte length stored per node.
func (l Layout) DiskBytesPerPoint() int64 {
	return int64(l.Dim) * int64(l.ElemSize)
}

// SectorsPerNode returns how many whole sectors a single node spans under
// the multi-sector-per-node layout; meaningless (but harmless) when the
// layout is packed.
func (l Layout) SectorsPerNode() int64 {
	if l.sectorsPerNode == 0 {
		return 1
	}

	return l.sectorsPerNode
}

// SectorOf returns the 0-based sector index that holds id's record, and
// how many sectors must be read to cover it (always 1 for the packed
// layout).
func (l Layout) SectorOf(id uint32) (sectorIdx int64, count int) {
	if l.NNodesPerSector > 0 {
		return 1 + int64(id)/int64(l.NNodesPerSector), 1
	}

	return 1 + int64(id)*l.sectorsPerNode, int(l.sectorsPerNode)
}

// NodeRecord is the decoded form of one node's on-disk record.
type NodeRecord struct {
	Coords    []byte // raw, ElemSize*Dim bytes, still in on-disk element type
	Neighbors []uint32
}

// DecodeNode extracts id's record from a sector buffer that starts at the
// sector SectorOf(id) returned. buf must contain at least SectorsPerNode
// sectors (or, for packed layout, the one sector containing id).
func (l Layout) DecodeNode(buf []byte, id uint32, maxDegree int) (NodeRecord, error) {
	bytesPerPoint := l.DiskBytesPerPoint()

	var nodeOff int64
	if l.NNodesPerSector > 0 {
		posInSector := int64(id) % int64(l.NNodesPerSector)
		nodeOff = posInSector * int64(l.MaxNodeLen)
	} else {
		nodeOff = 0
	}

	if nodeOff+int64(l.MaxNodeLen) > int64(len(buf)) {
		return NodeRecord{}, fmt.Errorf("sector: node %d record exceeds buffer (off=%d len=%d buf=%d)",
			id, nodeOff, l.MaxNodeLen, len(buf))
	}

	rec := buf[nodeOff : nodeOff+int64(l.MaxNodeLen)]

	if int64(len(rec)) < bytesPerPoint+4 {
		return NodeRecord{}, fmt.Errorf("sector: node %d record too short for coords+degree", id)
	}

	coords := rec[:bytesPerPoint]
	degree := binary.LittleEndian.Uint32(rec[bytesPerPoint : bytesPerPoint+4])

	if maxDegree > 0 && int(degree) > maxDegree {
		return NodeRecord{}, fmt.Errorf("sector: node %d degree %d exceeds max %d", id, degree, maxDegree)
	}

	neighStart := bytesPerPoint + 4
	need := int64(degree) * 4
	if neighStart+need > int64(len(rec)) {
		return NodeRecord{}, fmt.Errorf("sector: node %d neighbor list overruns record", id)
	}

	neighbors := make([]uint32, degree)
	for i := range neighbors {
		o := neighStart + int64(i)*4
		neighbors[i] = binary.LittleEndian.Uint32(rec[o : o+4])

		if uint64(neighbors[i]) >= l.N {
			return NodeRecord{}, fmt.Errorf("sector: node %d neighbor %d out of range (N=%d)", id, neighbors[i], l.N)
		}
	}

	return NodeRecord{Coords: coords, Neighbors: neighbors}, nil
}

// EncodeNode packs coords+degree+neighbors into a MaxNodeLen-padded record,
// used by tests that build synthetic fixtures.
func (l Layout) EncodeNode(coords []byte, neighbors []uint32) []byte {
	rec := make([]byte, l.MaxNodeLen)
	copy(rec, coords)

	bytesPerPoint := l.DiskBytesPerPoint()
	binary.LittleEndian.PutUint32(rec[bytesPerPoint:bytesPerPoint+4], uint32(len(neighbors)))

	neighStart := bytesPerPoint + 4
	for i, n := range neighbors {
		o := neighStart + int64(i)*4
		binary.LittleEndian.PutUint32(rec[o:o+4], n)
	}

	return rec
}

// CoordsAsFloat32 reinterprets a raw coordinate slice as float32s. It copies
// rather than aliasing the backing array, since the sector buffer it came
// from is owned by a reusable scratch arena.
func CoordsAsFloat32(raw []byte, dim int) []float32 {
	out := make([]float32, dim)
	for i := 0; i < dim; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}

	return out
}

// EncodeFloat32AsBytes is the inverse of CoordsAsFloat32, used when building
// synthetic on-disk fixtures in tests.
func EncodeFloat32AsBytes(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(f))
	}

	return out
}
