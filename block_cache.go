// block_cache.go - C4 Block Cache: maps guest PC to a compiled/decoded
// block and enforces the coherency invariants of spec.md §3-§4.3.

package main

// BlockPayload is implemented by each backend's translated block shape:
// a decoded-instruction vector (Tier 1), a threaded-handler chain
// (Tier 2), a super-operator chain (Tier 3), or a machine-code handle
// (the JIT). The cache itself never inspects the payload; it only tracks
// coverage and generation for coherency.
type BlockPayload interface {
	// Release is called when a block is evicted, so JIT payloads can
	// report their arena bytes as reclaimable and other payloads can be
	// simple no-ops.
	Release()
}

// Block is the cache's unit of translation: a straight-line guest byte
// range plus its backend-specific compiled form.
type Block struct {
	StartPC    uint16
	Length     uint16 // coverage length in bytes
	Payload    BlockPayload
	generation uint64
}

// Coverage returns the half-open guest byte range [StartPC, StartPC+Length).
func (b *Block) Coverage() (lo, hi uint16) { return b.StartPC, b.StartPC + b.Length }

// BlockHandle is a non-owning reference handed to a dispatcher. It
// carries the generation the block had when installed; Resolve fails once
// the underlying block has been evicted, even if another block was later
// installed at the same PC (spec.md §9: "An epoch counter or generation
// tag on handles detects stale references cheaply").
type BlockHandle struct {
	pc         uint16
	generation uint64
	cache      *BlockCache
}

// Resolve returns the live block behind h, or ok=false if it has been
// evicted since the handle was issued.
func (h BlockHandle) Resolve() (*Block, bool) {
	b, ok := h.cache.blocks[h.pc]
	if !ok || b.generation != h.generation {
		return nil, false
	}
	return b, true
}

// BlockCache (C4) is keyed by start PC. Overlap detection walks the small
// set of live blocks — Chip8 programs rarely have more than a few hundred
// blocks live at once, so a linear scan of a map beats maintaining an
// interval tree for this workload.
type BlockCache struct {
	blocks     map[uint16]*Block
	generation uint64

	// onFlush is invoked by FlushAll after every block payload has been
	// released, so the JIT backend can additionally reset its executable
	// arena bump pointer (spec.md §4.5 "the arena is flushed entirely").
	onFlush func()
}

// NewBlockCache creates an empty cache.
func NewBlockCache() *BlockCache {
	return &BlockCache{blocks: make(map[uint16]*Block)}
}

// SetFlushHook installs a callback invoked by FlushAll after clearing all
// blocks. Backends without an arena to reset may leave this unset.
func (c *BlockCache) SetFlushHook(fn func()) { c.onFlush = fn }

// Lookup returns the live block starting at pc, if any.
func (c *BlockCache) Lookup(pc uint16) (*Block, bool) {
	b, ok := c.blocks[pc]
	return b, ok
}

// Handle wraps a live block in a non-owning handle for a dispatcher to
// retain across a call into the block's own execution.
func (c *BlockCache) Handle(b *Block) BlockHandle {
	return BlockHandle{pc: b.StartPC, generation: b.generation, cache: c}
}

// Install adds a new block to the cache, first evicting any live block
// whose coverage overlaps the new block's coverage (spec.md §4.3: "no two
// live blocks have overlapping coverage; if a new block would overlap,
// conflicting blocks are evicted first").
func (c *BlockCache) Install(b *Block) BlockHandle {
	lo, hi := b.Coverage()
	c.evictOverlapping(lo, hi)
	c.generation++
	b.generation = c.generation
	c.blocks[b.StartPC] = b
	return c.Handle(b)
}

// InvalidateRange evicts every live block whose coverage intersects
// [lo, hi). This is the sole entry point self-modifying writes use to
// keep the cache coherent (spec.md §4.3, §9).
func (c *BlockCache) InvalidateRange(lo, hi uint16) {
	c.evictOverlapping(lo, hi)
}

func (c *BlockCache) evictOverlapping(lo, hi uint16) {
	for pc, b := range c.blocks {
		blo, bhi := b.Coverage()
		if blo < hi && lo < bhi {
			b.Payload.Release()
			delete(c.blocks, pc)
		}
	}
}

// FlushAll removes every live block and resets the executable arena if a
// flush hook is installed (JIT backends). Used on backend switch
// (spec.md §4.6) and on JIT arena exhaustion (spec.md §7).
func (c *BlockCache) FlushAll() {
	for pc, b := range c.blocks {
		b.Payload.Release()
		delete(c.blocks, pc)
	}
	if c.onFlush != nil {
		c.onFlush()
	}
}

// Len reports the number of live blocks, for tests and diagnostics.
func (c *BlockCache) Len() int { return len(c.blocks) }

// noopPayload satisfies BlockPayload for backends whose blocks own no
// external resource (Tiers 1-3: their payload is ordinary Go slices,
// reclaimed by the garbage collector).
type noopPayload struct{}

func (noopPayload) Release() {}
