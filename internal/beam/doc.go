// Package beam implements the beam search engine (C8): best-first graph
// traversal over a disk-resident Vamana/DiskANN-style graph, scoring
// candidates cheaply with product quantization and optionally replacing
// those estimates with exact distances fetched from sector-resident
// coordinates or a remote embedding service. Filtered search (C9) and
// range search (C10) are built as thin wrappers over the same core loop.
package beam
