// Package nodecache provides the warm in-memory node cache: a bounded
// mapping from node id to its decoded coordinates and neighbor list, used
// by the beam search core to skip a sector read and to supply an exact
// (non-PQ) coordinate for the re-ranking step.
//
// The cache is populated once at load time by one of two warmup policies
// (BFS from the graph's medoids, or replay of a sample query log with
// visit counting) and is read-only during query serving.
package nodecache
