// Package testutil provides testing utilities for vecgo's disk-index
// tests: seeded vector generation, brute-force ground truth, and recall
// verification, so fixture-backed tests in internal/diskindex can
// assert against exact nearest neighbors instead of hand-picked
// expected ids.
//
// This package is intended for use in tests and benchmarks only.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vectors := rng.ClusteredVectors(n, dim, numClusters, spread)
//	labels := rng.Zipf(numLabels, 1.1) // skewed per-point label id
//
// # Exact Search (Ground Truth)
//
//	results := testutil.BruteForceSearch(dataset, query, k)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(groundTruth, approxResults)
package testutil
