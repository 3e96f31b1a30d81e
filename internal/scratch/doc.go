// Package scratch implements the thread-local scratch pool (C4): a
// fixed-capacity bag of preallocated per-query slots so a beam search
// reuses its candidate queue, visited set, result list and dedup memo
// across queries instead of allocating them per query; the engine still
// allocates its query buffer and PQ distance table for each query.
// Slots are acquired before a query begins
// and released on every exit path, including failure.
package scratch
