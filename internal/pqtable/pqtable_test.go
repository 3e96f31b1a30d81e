package pqtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityTrainingSet(dim int) [][]float32 {
	vectors := make([][]float32, 8)
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(i*dim + j)
		}

		vectors[i] = v
	}

	return vectors
}

func TestNewEvenChunksRejectsNonDivisible(t *testing.T) {
	_, err := NewEvenChunks(10, 3)
	assert.Error(t, err)
}

func TestTrainEncodeDecodeRoundTrip(t *testing.T) {
	dim := 4
	table, err := NewEvenChunks(dim, 2)
	require.NoError(t, err)

	vectors := identityTrainingSet(dim)
	require.NoError(t, table.Train(vectors, 10))
	assert.True(t, table.IsTrained())

	codes, err := table.Encode(vectors[3])
	require.NoError(t, err)
	require.Len(t, codes, 2)

	decoded, err := table.Decode(codes)
	require.NoError(t, err)
	require.Len(t, decoded, dim)

	// Decoded vector should be close to the original (it's one of the
	// training points, so k-means should assign it a very close centroid).
	for i := range decoded {
		assert.InDelta(t, vectors[3][i], decoded[i], 2.0)
	}
}

func TestDistanceTableLookupMatchesDecode(t *testing.T) {
	dim := 4
	table, err := NewEvenChunks(dim, 2)
	require.NoError(t, err)

	vectors := identityTrainingSet(dim)
	require.NoError(t, table.Train(vectors, 10))

	query := vectors[5]

	qPrime, err := table.PreprocessQuery(query)
	require.NoError(t, err)
	assert.Equal(t, query, qPrime) // no centering/rotation installed

	dt, err := table.PopulateChunkDistances(qPrime)
	require.NoError(t, err)

	codes, err := table.Encode(vectors[2])
	require.NoError(t, err)

	pqDist, err := dt.Lookup(codes)
	require.NoError(t, err)

	decoded, err := table.Decode(codes)
	require.NoError(t, err)

	var want float32
	for i := range decoded {
		d := query[i] - decoded[i]
		want += d * d
	}

	assert.InDelta(t, want, pqDist, 1e-4)
}

func TestPreprocessQueryAppliesCenteringAndRotation(t *testing.T) {
	table, err := NewEvenChunks(2, 1)
	require.NoError(t, err)

	require.NoError(t, table.SetCentering([]float32{1, 1}))
	require.NoError(t, table.SetRotation([][]float32{
		{0, 1},
		{1, 0},
	}))

	out, err := table.PreprocessQuery([]float32{5, 3})
	require.NoError(t, err)

	// center: [4, 2]; rotate (swap): [2, 4]
	assert.Equal(t, []float32{2, 4}, out)
}

func TestSetCodebookTracksTrainedState(t *testing.T) {
	table, err := NewEvenChunks(4, 2)
	require.NoError(t, err)

	assert.False(t, table.IsTrained())

	cb0 := make([]float32, NumCentroids*2)
	require.NoError(t, table.SetCodebook(0, cb0))
	assert.False(t, table.IsTrained())

	cb1 := make([]float32, NumCentroids*2)
	require.NoError(t, table.SetCodebook(1, cb1))
	assert.True(t, table.IsTrained())
}

func TestSetCodebookRejectsWrongLength(t *testing.T) {
	table, err := NewEvenChunks(4, 2)
	require.NoError(t, err)

	err = table.SetCodebook(0, make([]float32, 5))
	assert.Error(t, err)
}

func TestLookupRejectsWrongCodeLength(t *testing.T) {
	table, err := NewEvenChunks(4, 2)
	require.NoError(t, err)
	require.NoError(t, table.Train(identityTrainingSet(4), 5))

	qPrime, err := table.PreprocessQuery(identityTrainingSet(4)[0])
	require.NoError(t, err)

	dt, err := table.PopulateChunkDistances(qPrime)
	require.NoError(t, err)

	_, err = dt.Lookup([]byte{1})
	assert.Error(t, err)
}
