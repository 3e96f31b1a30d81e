// Package codes holds the resident PQ code table for all N points
// (the "compressed store" of the data model): one byte per chunk per
// point, memory-mapped rather than copied into the heap so a
// multi-gigabyte code table costs no RSS beyond what the kernel pages
// in on demand. The mapping logic here is the narrow read-only subset
// this table actually needs (map, read, unmap); there is no separate
// general-purpose mmap package to route through.
package codes

import (
	"fmt"
	"os"
	"sync/atomic"
)

// Table is a memory-mapped, N*numChunks-byte PQ code table.
type Table struct {
	data   []byte
	unmap  func([]byte) error
	closed atomic.Bool

	numChunks int
	n         uint64
}

// Open maps path (a `<prefix>_pq_compressed.bin` file) and validates that
// it holds at least n*numChunks bytes, per the "PQ code of exactly
// n_chunks bytes exists at byte offset i*n_chunks" invariant.
func Open(path string, n uint64, numChunks int) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("codes: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("codes: %w", err)
	}

	size := fi.Size()

	need := int64(n) * int64(numChunks)
	if size < need {
		return nil, fmt.Errorf("codes: %s holds %d bytes, need %d for N=%d numChunks=%d", path, size, need, n, numChunks)
	}

	var data []byte
	var unmap func([]byte) error

	if size > 0 {
		data, unmap, err = mmapFile(f, int(size))
		if err != nil {
			return nil, fmt.Errorf("codes: %w", err)
		}
	}

	return &Table{data: data, unmap: unmap, numChunks: numChunks, n: n}, nil
}

// Code returns id's PQ code, a numChunks-byte slice aliasing the mapped
// file. The returned slice must not be retained past Close.
func (t *Table) Code(id uint32) []byte {
	off := uint64(id) * uint64(t.numChunks)
	return t.data[off : off+uint64(t.numChunks)]
}

// NumChunks returns the per-point code length.
func (t *Table) NumChunks() int { return t.numChunks }

// N returns the point count the table was opened for.
func (t *Table) N() uint64 { return t.n }

// Close unmaps the underlying file. Idempotent.
func (t *Table) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	if t.unmap != nil && t.data != nil {
		return t.unmap(t.data)
	}

	return nil
}
