package sector

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		N:               8,
		Dim:             4,
		MedoidID:        0,
		MaxNodeLen:      64,
		NNodesPerSector: 16,
		HasReorder:      0,
	}

	buf := h.Encode()
	require.Len(t, buf, Size)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHeaderRoundTripWithReorder(t *testing.T) {
	h := Header{
		N:                  100,
		Dim:                128,
		MaxNodeLen:         1024,
		HasReorder:         1,
		ReorderStartSector: 50,
		NDimsReorder:       128,
		NVecsPerSector:     4,
	}

	buf := h.Encode()
	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, Size)
	_, err := DecodeHeader(buf)
	assert.Error(t, err)
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, 10))
	assert.Error(t, err)
}

func TestLayoutSectorOfPacked(t *testing.T) {
	l, err := NewLayout(Header{N: 100, Dim: 4, MaxNodeLen: 32, NNodesPerSector: 10}, 4)
	require.NoError(t, err)

	s, count := l.SectorOf(0)
	assert.Equal(t, int64(1), s)
	assert.Equal(t, 1, count)

	s, _ = l.SectorOf(25)
	assert.Equal(t, int64(3), s)
}

func TestLayoutSectorOfMultiSector(t *testing.T) {
	l, err := NewLayout(Header{N: 100, Dim: 1024, MaxNodeLen: 5000}, 4)
	require.NoError(t, err)

	assert.Equal(t, int64(2), l.SectorsPerNode())

	s, count := l.SectorOf(1)
	assert.Equal(t, int64(3), s)
	assert.Equal(t, 2, count)
}

func TestNodeEncodeDecodeRoundTrip(t *testing.T) {
	l, err := NewLayout(Header{N: 8, Dim: 4, MaxNodeLen: 4*4 + 4 + 3*4, NNodesPerSector: 4}, 4)
	require.NoError(t, err)

	coords := EncodeFloat32AsBytes([]float32{1, 2, 3, 4})
	neighbors := []uint32{1, 2, 3}

	rec := l.EncodeNode(coords, neighbors)

	// Place this single record into a sector buffer at its natural position.
	sectorBuf := make([]byte, Size)
	copy(sectorBuf, rec)

	decoded, err := l.DecodeNode(sectorBuf, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, coords, decoded.Coords)
	assert.Equal(t, neighbors, decoded.Neighbors)

	back := CoordsAsFloat32(decoded.Coords, 4)
	assert.Equal(t, []float32{1, 2, 3, 4}, back)
}

func TestDecodeNodeRejectsOversizeDegree(t *testing.T) {
	l, err := NewLayout(Header{N: 8, Dim: 4, MaxNodeLen: 4*4 + 4 + 10*4, NNodesPerSector: 1}, 4)
	require.NoError(t, err)

	coords := EncodeFloat32AsBytes([]float32{0, 0, 0, 0})
	neighbors := []uint32{1, 2, 3, 4, 5}
	rec := l.EncodeNode(coords, neighbors)

	_, err = l.DecodeNode(rec, 0, 2)
	assert.Error(t, err)
}

func TestDecodeNodeRejectsOutOfRangeNeighbor(t *testing.T) {
	l, err := NewLayout(Header{N: 8, Dim: 4, MaxNodeLen: 4*4 + 4 + 1*4, NNodesPerSector: 1}, 4)
	require.NoError(t, err)

	coords := EncodeFloat32AsBytes([]float32{0, 0, 0, 0})
	rec := l.EncodeNode(coords, []uint32{99})

	_, err = l.DecodeNode(rec, 0, 64)
	assert.Error(t, err)
}

func TestFileReaderReadBatch(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "sectors")
	require.NoError(t, err)
	defer f.Close()

	data := make([]byte, Size*3)
	for i := range data {
		data[i] = byte(i % 256)
	}

	_, err = f.Write(data)
	require.NoError(t, err)

	r := NewFileReader(f)
	defer r.Close()

	buf1 := NewAlignedBuffer(1)
	buf2 := NewAlignedBuffer(1)
	reqs := []Request{
		{Sector: 0, Count: 1, Buf: buf1},
		{Sector: 2, Count: 1, Buf: buf2},
	}

	r.ReadBatch(reqs)

	require.NoError(t, reqs[0].Err)
	require.NoError(t, reqs[1].Err)
	assert.Equal(t, data[0:Size], buf1)
	assert.Equal(t, data[2*Size:3*Size], buf2)
}

func TestFileReaderThreadContextReuse(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "sectors")
	require.NoError(t, err)
	defer f.Close()

	r := NewFileReader(f)
	defer r.Close()

	a := r.RegisterThread()
	r.DeregisterThread(a)
	b := r.RegisterThread()
	assert.Equal(t, a, b)
}
