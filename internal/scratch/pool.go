package scratch

import (
	"errors"
	"sync"

	"github.com/hupe1980/vecgo/internal/sector"
)

// ErrClosed is returned by Acquire once the pool has been closed.
var ErrClosed = errors.New("scratch: pool closed")

// Slot is one thread's reusable query workspace: the pieces listed by the
// scratch-pool contract — an aligned query buffer, PQ scratch space, a
// reserved sector-read arena, the candidate queue R, the visited set V,
// the full-return list F, and a per-thread I/O context.
type Slot struct {
	index int

	Query       []float32 // preprocessed query, reused across calls
	ChunkDist   []float32 // numChunks*256 scratch for the PQ distance table
	CodeGather  [][]byte  // scratch for gathering PQ codes of a neighbor batch
	SectorArena []byte    // beamWidth*sectorsPerNode*sector.Size aligned bytes

	Queue   *Queue
	Visited *visitedSet
	touched []uint32 // bits set on Visited this query, for O(touched) reset
	F       []Candidate

	// IOCtx is this slot's registered sector.Reader thread context, or -1
	// if no reader was wired into the pool.
	IOCtx int

	// EmbedKey is the thread key this slot presents to the embedding
	// client's per-thread connection map. It never changes, so it is
	// safe to reuse across queries run on this slot.
	EmbedKey int

	// Memo is the per-query dedup cache (id -> exact distance) used by
	// recompute_neighbors+dedup_cache mode. Cleared by Reset when the
	// slot is next acquired.
	Memo map[uint32]float32
}

// Reset clears all per-query state so the slot can be reused for the
// next query. The visited set is cleared by unsetting only the bits this
// query actually touched, avoiding an O(N) scan.
func (s *Slot) Reset() {
	s.Query = s.Query[:0]
	s.Queue.Reset()
	s.F = s.F[:0]

	for _, id := range s.touched {
		s.Visited.Unset(uint64(id))
	}

	s.touched = s.touched[:0]

	for k := range s.Memo {
		delete(s.Memo, k)
	}
}

// MarkVisited sets id in the visited set and records it for the next
// Reset. It reports whether id was already visited.
func (s *Slot) MarkVisited(id uint32) bool {
	already := s.Visited.TestAndSet(uint64(id))
	if !already {
		s.touched = append(s.touched, id)
	}

	return already
}

// Pool is the fixed-capacity, thread-safe bag of scratch slots sized for
// maxThreads concurrent queries. Excess callers block in Acquire until a
// slot is released.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	free   []*Slot
	slots  []*Slot
	closed bool

	reader sector.Reader // nil if no sector-aligned reader is wired in
}

// Config describes how large each slot's reusable buffers must be.
type Config struct {
	MaxThreads     int
	QueueCapacity  int    // L
	N              uint64 // total point count, for the visited bitset
	NumChunks      int    // PQ chunks, sizes ChunkDist
	BeamWidth      int
	SectorsPerNode int64
	Reader         sector.Reader // optional; registers a per-slot I/O context
}

// New builds a Pool of cfg.MaxThreads preallocated slots.
func New(cfg Config) *Pool {
	p := &Pool{reader: cfg.Reader}
	p.cond = sync.NewCond(&p.mu)

	arenaSize := int(cfg.BeamWidth) * int(cfg.SectorsPerNode) * sector.Size

	for i := 0; i < cfg.MaxThreads; i++ {
		slot := &Slot{
			index:       i,
			Query:       make([]float32, 0, 2048),
			ChunkDist:   make([]float32, cfg.NumChunks*256),
			SectorArena: sector.NewAlignedBuffer(cfg.BeamWidth * int(cfg.SectorsPerNode)),
			Queue:       NewQueue(cfg.QueueCapacity),
			Visited:     newVisitedSet(cfg.N),
			F:           make([]Candidate, 0, cfg.QueueCapacity*4),
			IOCtx:       -1,
			EmbedKey:    i,
			Memo:        make(map[uint32]float32),
		}

		if arenaSize == 0 {
			slot.SectorArena = nil
		}

		if cfg.Reader != nil {
			slot.IOCtx = cfg.Reader.RegisterThread()
		}

		p.slots = append(p.slots, slot)
		p.free = append(p.free, slot)
	}

	return p
}

// Acquire blocks until a slot is available, resets it, and returns it.
// The caller must call Release on every exit path.
func (p *Pool) Acquire() (*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.free) == 0 && !p.closed {
		p.cond.Wait()
	}

	if p.closed {
		return nil, ErrClosed
	}

	n := len(p.free) - 1
	slot := p.free[n]
	p.free = p.free[:n]
	slot.Reset()

	return slot, nil
}

// Release returns slot to the pool.
func (p *Pool) Release(slot *Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.free = append(p.free, slot)
	p.cond.Signal()
}

// Close deregisters every slot's I/O context and marks the pool closed;
// subsequent Acquire calls return ErrClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true

	if p.reader != nil {
		for _, slot := range p.slots {
			if slot.IOCtx >= 0 {
				p.reader.DeregisterThread(slot.IOCtx)
			}
		}
	}

	p.cond.Broadcast()
}

// Len returns the pool's total slot count.
func (p *Pool) Len() int {
	return len(p.slots)
}
