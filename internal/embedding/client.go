package embedding

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Timeout is the fixed send/receive timeout the wire contract specifies.
const Timeout = 300 * time.Second

// Client fetches embeddings for node id batches from a remote embedding
// service over REQ/REP semantics: one request per connection round trip,
// one persistent connection per worker thread. A thread identifies itself
// by an opaque key (typically the scratch-pool slot index); its socket is
// never shared with another thread.
type Client struct {
	addr string

	mu    sync.Mutex
	conns map[int]net.Conn
}

// NewClient creates a client targeting tcp://127.0.0.1:<port>.
func NewClient(port int) *Client {
	return &Client{
		addr:  fmt.Sprintf("127.0.0.1:%d", port),
		conns: make(map[int]net.Conn),
	}
}

// Close closes every open per-thread connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error

	for k, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		delete(c.conns, k)
	}

	return firstErr
}

func (c *Client) connFor(threadKey int) (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[threadKey]; ok {
		return conn, nil
	}

	conn, err := net.DialTimeout("tcp", c.addr, Timeout)
	if err != nil {
		return nil, err
	}

	c.conns[threadKey] = conn

	return conn, nil
}

func (c *Client) dropConn(threadKey int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[threadKey]; ok {
		_ = conn.Close()
		delete(c.conns, threadKey)
	}
}

// FetchError wraps any failure in the fetch contract: transport failure,
// parse failure, wrong dimensions entries, or a size mismatch.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("embedding: fetch failed: %v", e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// Fetch sends a batch request for nodeIDs on threadKey's persistent
// connection and returns one dense vector per id, in the same order. On
// any send/receive failure the connection is closed and will be lazily
// re-opened on the next call.
func (c *Client) Fetch(threadKey int, nodeIDs []uint32) ([][]float32, error) {
	conn, err := c.connFor(threadKey)
	if err != nil {
		return nil, &FetchError{Err: err}
	}

	vectors, err := c.roundTrip(conn, nodeIDs)
	if err != nil {
		c.dropConn(threadKey)
		return nil, &FetchError{Err: err}
	}

	if len(vectors) != len(nodeIDs) {
		c.dropConn(threadKey)
		return nil, &FetchError{Err: fmt.Errorf("got %d vectors for %d requested ids", len(vectors), len(nodeIDs))}
	}

	return vectors, nil
}

func (c *Client) roundTrip(conn net.Conn, nodeIDs []uint32) ([][]float32, error) {
	req := Request{NodeIDs: nodeIDs}

	if err := conn.SetWriteDeadline(time.Now().Add(Timeout)); err != nil {
		return nil, err
	}

	if err := writeFrame(conn, req.Marshal()); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(Timeout)); err != nil {
		return nil, err
	}

	body, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("recv: %w", err)
	}

	resp, err := UnmarshalResponse(body)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	return resp.Vectors()
}

// writeFrame and readFrame implement the length-delimited body framing a
// stream transport needs underneath the REQ/REP message contract: a
// 4-byte little-endian length prefix followed by the protobuf-encoded body.
func writeFrame(w io.Writer, body []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}

	_, err := w.Write(body)

	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte

	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	n := binary.LittleEndian.Uint32(lenBuf[:])
	body := make([]byte, n)

	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	return body, nil
}
