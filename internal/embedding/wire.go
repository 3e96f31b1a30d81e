// Package embedding implements the embedding client (C7): a request/reply
// client that fetches fresh base-vector embeddings for a batch of node ids
// from a remote service, used by the recompute/deferred-fetch beam search
// modes. The corpus carries no ZeroMQ binding, so the REQ/REP contract is
// served over a plain TCP connection with a length-delimited protobuf wire
// body, encoded/decoded field-by-field with protowire rather than a
// generated .pb.go (no protoc toolchain is available in this environment).
package embedding

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Request field numbers.
const fieldNodeIDs = 1

// Response field numbers.
const (
	fieldEmbeddingsData = 1
	fieldDimensions      = 2
	fieldMissingIDs      = 3
)

// Request is the client->server message: a batch of node ids to embed.
type Request struct {
	NodeIDs []uint32
}

// Marshal encodes Request per the wire contract: repeated uint32 node_ids = 1.
func (r Request) Marshal() []byte {
	var buf []byte

	for _, id := range r.NodeIDs {
		buf = protowire.AppendTag(buf, fieldNodeIDs, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(id))
	}

	return buf
}

// UnmarshalRequest decodes a Request from its wire body.
func UnmarshalRequest(buf []byte) (Request, error) {
	var r Request

	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return Request{}, fmt.Errorf("embedding: bad request tag: %w", protowire.ParseError(n))
		}

		buf = buf[n:]

		switch {
		case num == fieldNodeIDs && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return Request{}, fmt.Errorf("embedding: bad node_ids varint: %w", protowire.ParseError(n))
			}

			r.NodeIDs = append(r.NodeIDs, uint32(v))
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return Request{}, fmt.Errorf("embedding: bad field %d: %w", num, protowire.ParseError(n))
			}

			buf = buf[n:]
		}
	}

	return r, nil
}

// Response is the server->client message: packed embeddings plus shape.
type Response struct {
	EmbeddingsData []byte   // batch*dim little-endian f32s, contiguous
	Dimensions     []int32  // exactly [batch, dim]
	MissingIDs     []uint32 // reserved for server-side misses
}

// Marshal encodes Response per the wire contract.
func (r Response) Marshal() []byte {
	var buf []byte

	buf = protowire.AppendTag(buf, fieldEmbeddingsData, protowire.BytesType)
	buf = protowire.AppendBytes(buf, r.EmbeddingsData)

	for _, d := range r.Dimensions {
		buf = protowire.AppendTag(buf, fieldDimensions, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(uint32(d)))
	}

	for _, id := range r.MissingIDs {
		buf = protowire.AppendTag(buf, fieldMissingIDs, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(id))
	}

	return buf
}

// UnmarshalResponse decodes a Response from its wire body.
func UnmarshalResponse(buf []byte) (Response, error) {
	var r Response

	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return Response{}, fmt.Errorf("embedding: bad response tag: %w", protowire.ParseError(n))
		}

		buf = buf[n:]

		switch {
		case num == fieldEmbeddingsData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return Response{}, fmt.Errorf("embedding: bad embeddings_data: %w", protowire.ParseError(n))
			}

			r.EmbeddingsData = append([]byte{}, v...)
			buf = buf[n:]
		case num == fieldDimensions && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return Response{}, fmt.Errorf("embedding: bad dimensions varint: %w", protowire.ParseError(n))
			}

			r.Dimensions = append(r.Dimensions, int32(uint32(v)))
			buf = buf[n:]
		case num == fieldMissingIDs && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return Response{}, fmt.Errorf("embedding: bad missing_ids varint: %w", protowire.ParseError(n))
			}

			r.MissingIDs = append(r.MissingIDs, uint32(v))
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return Response{}, fmt.Errorf("embedding: bad field %d: %w", num, protowire.ParseError(n))
			}

			buf = buf[n:]
		}
	}

	return r, nil
}

// Vectors unpacks EmbeddingsData into batch dense float32 vectors of
// length dim, validating the [batch, dim] shape and byte-size invariants
// the embedding client contract requires.
func (r Response) Vectors() ([][]float32, error) {
	if len(r.Dimensions) != 2 {
		return nil, fmt.Errorf("embedding: expected 2 dimensions entries, got %d", len(r.Dimensions))
	}

	batch, dim := int(r.Dimensions[0]), int(r.Dimensions[1])
	if batch < 0 || dim < 0 {
		return nil, fmt.Errorf("embedding: negative batch/dim %d/%d", batch, dim)
	}

	want := 4 * batch * dim
	if len(r.EmbeddingsData) != want {
		return nil, fmt.Errorf("embedding: embeddings_data size %d != 4*batch*dim (%d)", len(r.EmbeddingsData), want)
	}

	out := make([][]float32, batch)

	for i := 0; i < batch; i++ {
		v := make([]float32, dim)

		for j := 0; j < dim; j++ {
			o := 4 * (i*dim + j)
			bits := uint32(r.EmbeddingsData[o]) | uint32(r.EmbeddingsData[o+1])<<8 |
				uint32(r.EmbeddingsData[o+2])<<16 | uint32(r.EmbeddingsData[o+3])<<24
			v[j] = math.Float32frombits(bits)
		}

		out[i] = v
	}

	return out, nil
}

// EncodeVectors packs batch dense float32 vectors into the little-endian
// byte layout EmbeddingsData uses, for building synthetic server fixtures.
func EncodeVectors(vectors [][]float32) []byte {
	if len(vectors) == 0 {
		return nil
	}

	dim := len(vectors[0])
	out := make([]byte, 4*len(vectors)*dim)

	for i, v := range vectors {
		for j, f := range v {
			o := 4 * (i*dim + j)
			bits := math.Float32bits(f)
			out[o] = byte(bits)
			out[o+1] = byte(bits >> 8)
			out[o+2] = byte(bits >> 16)
			out[o+3] = byte(bits >> 24)
		}
	}

	return out
}
