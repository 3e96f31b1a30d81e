package embedding

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestMarshalRoundTrip(t *testing.T) {
	req := Request{NodeIDs: []uint32{1, 2, 3, 4294967295}}

	got, err := UnmarshalRequest(req.Marshal())
	require.NoError(t, err)
	assert.Equal(t, req.NodeIDs, got.NodeIDs)
}

func TestResponseMarshalRoundTrip(t *testing.T) {
	resp := Response{
		EmbeddingsData: EncodeVectors([][]float32{{1, 2}, {3, 4}}),
		Dimensions:     []int32{2, 2},
		MissingIDs:     []uint32{7},
	}

	got, err := UnmarshalResponse(resp.Marshal())
	require.NoError(t, err)
	assert.Equal(t, resp.EmbeddingsData, got.EmbeddingsData)
	assert.Equal(t, resp.Dimensions, got.Dimensions)
	assert.Equal(t, resp.MissingIDs, got.MissingIDs)
}

func TestResponseVectorsRejectsWrongDimensionsCount(t *testing.T) {
	resp := Response{Dimensions: []int32{1}}
	_, err := resp.Vectors()
	assert.Error(t, err)
}

func TestResponseVectorsRejectsSizeMismatch(t *testing.T) {
	resp := Response{Dimensions: []int32{1, 4}, EmbeddingsData: make([]byte, 8)}
	_, err := resp.Vectors()
	assert.Error(t, err)
}

func TestResponseVectorsUnpacksCorrectly(t *testing.T) {
	want := [][]float32{{1, 2, 3}, {4, 5, 6}}
	resp := Response{
		EmbeddingsData: EncodeVectors(want),
		Dimensions:     []int32{2, 3},
	}

	got, err := resp.Vectors()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// fakeServer accepts exactly one connection and answers every request
// read from it with makeResp(req) until a read, decode or write fails.
func fakeServer(t *testing.T, ln net.Listener, makeResp func(Request) Response) {
	t.Helper()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			body, err := readFrame(conn)
			if err != nil {
				return
			}

			req, err := UnmarshalRequest(body)
			if err != nil {
				return
			}

			resp := makeResp(req)
			if err := writeFrame(conn, resp.Marshal()); err != nil {
				return
			}
		}
	}()
}

func TestClientFetchRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	fakeServer(t, ln, func(req Request) Response {
		vectors := make([][]float32, len(req.NodeIDs))
		for i, id := range req.NodeIDs {
			vectors[i] = []float32{float32(id), float32(id) * 2}
		}

		return Response{
			EmbeddingsData: EncodeVectors(vectors),
			Dimensions:     []int32{int32(len(vectors)), 2},
		}
	})

	port := ln.Addr().(*net.TCPAddr).Port
	c := NewClient(port)
	defer c.Close()

	vectors, err := c.Fetch(0, []uint32{5, 9})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{5, 10}, vectors[0])
	assert.Equal(t, []float32{9, 18}, vectors[1])
}

func TestClientFetchReopensAfterFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	c := NewClient(port)
	defer c.Close()

	// First connection: accept then immediately close without replying,
	// forcing the client to observe a transport failure.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}

		conn.Close()
	}()

	_, err = c.Fetch(0, []uint32{1})
	assert.Error(t, err)

	var fe *FetchError
	assert.ErrorAs(t, err, &fe)

	// Second connection: server answers normally this time.
	fakeServer(t, ln, func(req Request) Response {
		return Response{
			EmbeddingsData: EncodeVectors([][]float32{{1}}),
			Dimensions:     []int32{1, 1},
		}
	})

	time.Sleep(10 * time.Millisecond)

	vectors, err := c.Fetch(0, []uint32{1})
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vectors[0])
}
