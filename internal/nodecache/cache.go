package nodecache

import (
	"container/list"
	"sort"
	"sync"
	"sync/atomic"
)

// Node is the decoded, cached form of a graph record: exact coordinates
// plus its neighbor list, as they appear on disk.
type Node struct {
	Coords    []float32
	Neighbors []uint32
}

// Source reads a single decoded node record, used during cache warmup.
// It is normally backed by the sector reader (C1) plus layout decoder (C3).
type Source interface {
	ReadNode(id uint32) (Node, error)
	NumNodes() int
	Medoids() []uint32
}

// Mode selects the warmup policy used to populate the cache at load time.
type Mode int

const (
	// ModeNone disables the cache; every beam step issues I/O.
	ModeNone Mode = iota
	// ModeBFS expands breadth-first from the graph's medoids.
	ModeBFS
	// ModeSample replays a sample query log with visit counting and
	// caches the highest-count ids.
	ModeSample
)

// Cache is a bounded, read-mostly node cache. It is populated once via
// WarmBFS or WarmSample at load time; Get is safe for concurrent readers
// thereafter, and the rare Get-miss-then-insert path is also safe.
type Cache struct {
	mu        sync.Mutex
	capacity  int
	items     map[uint32]*list.Element
	evictList *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	id   uint32
	node Node
}

// NewCache creates a node cache bounded to capacity entries.
func NewCache(capacity int) *Cache {
	return &Cache{
		capacity:  capacity,
		items:     make(map[uint32]*list.Element, capacity),
		evictList: list.New(),
	}
}

// Get returns the cached node for id, if present.
func (c *Cache) Get(id uint32) (Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[id]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(el)
		return el.Value.(*entry).node, true
	}

	c.misses.Add(1)
	return Node{}, false
}

// Set inserts or refreshes a cached node, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *Cache) Set(id uint32, n Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[id]; ok {
		el.Value.(*entry).node = n
		c.evictList.MoveToFront(el)
		return
	}

	if c.capacity <= 0 {
		return
	}

	if c.evictList.Len() >= c.capacity {
		back := c.evictList.Back()
		if back != nil {
			c.evictList.Remove(back)
			delete(c.items, back.Value.(*entry).id)
		}
	}

	el := c.evictList.PushFront(&entry{id: id, node: n})
	c.items[id] = el
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.evictList.Len()
}

// Stats returns cumulative hit/miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// maxCacheFraction caps BFS warmup at 10% of the node count regardless of
// the requested target, per the node-cache sizing rule.
const maxCacheFraction = 0.10

// WarmBFS expands breadth-first from src's medoids until at least
// numNodesToCache distinct ids have been visited, capped at 10% of N.
// sortWithinLevel controls whether each BFS level's frontier is visited
// in ascending id order (deterministic) or in discovery order.
func WarmBFS(src Source, c *Cache, numNodesToCache int, sortWithinLevel bool) error {
	n := src.NumNodes()

	limit := numNodesToCache
	if cap10 := int(float64(n) * maxCacheFraction); cap10 < limit {
		limit = cap10
	}

	if limit <= 0 {
		return nil
	}

	visited := make(map[uint32]bool)
	frontier := append([]uint32{}, src.Medoids()...)

	for len(frontier) > 0 && len(visited) < limit {
		if sortWithinLevel {
			sort.Slice(frontier, func(i, j int) bool { return frontier[i] < frontier[j] })
		}

		var next []uint32

		for _, id := range frontier {
			if visited[id] {
				continue
			}

			node, err := src.ReadNode(id)
			if err != nil {
				return err
			}

			visited[id] = true
			c.Set(id, node)

			if len(visited) >= limit {
				break
			}

			next = append(next, node.Neighbors...)
		}

		frontier = next
	}

	return nil
}

// VisitCounter tallies per-id visit counts during a sample-driven warmup
// run. Adds are atomic since a sample run may be replayed concurrently
// across worker threads.
type VisitCounter struct {
	mu     sync.Mutex
	counts map[uint32]*atomic.Int64
}

// NewVisitCounter creates an empty visit counter.
func NewVisitCounter() *VisitCounter {
	return &VisitCounter{counts: make(map[uint32]*atomic.Int64)}
}

// Add increments id's visit count by one.
func (v *VisitCounter) Add(id uint32) {
	v.mu.Lock()
	c, ok := v.counts[id]
	if !ok {
		c = &atomic.Int64{}
		v.counts[id] = c
	}
	v.mu.Unlock()

	c.Add(1)
}

// TopN returns the n ids with the highest visit counts, descending.
func (v *VisitCounter) TopN(n int) []uint32 {
	v.mu.Lock()
	type pair struct {
		id    uint32
		count int64
	}

	pairs := make([]pair, 0, len(v.counts))
	for id, c := range v.counts {
		pairs = append(pairs, pair{id, c.Load()})
	}
	v.mu.Unlock()

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].id < pairs[j].id
	})

	if n > len(pairs) {
		n = len(pairs)
	}

	ids := make([]uint32, n)
	for i := 0; i < n; i++ {
		ids[i] = pairs[i].id
	}

	return ids
}

// WarmSample populates c from the ids with the highest recorded visit
// counts in v, capped at 10% of src's node count.
func WarmSample(src Source, c *Cache, v *VisitCounter, numNodesToCache int) error {
	n := src.NumNodes()

	limit := numNodesToCache
	if cap10 := int(float64(n) * maxCacheFraction); cap10 < limit {
		limit = cap10
	}

	for _, id := range v.TopN(limit) {
		node, err := src.ReadNode(id)
		if err != nil {
			return err
		}

		c.Set(id, node)
	}

	return nil
}
