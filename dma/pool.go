package dma

import (
	"errors"
	"strconv"
	"sync"
)

// MaskBits returns a DMA mask covering the lowest n address bits.
func MaskBits(n uint) Addr {
	if n >= 64 {
		return ^Addr(0)
	}
	return Addr(1)<<n - 1
}

const blockAlign = 64 // Cache line.

var (
	ErrUnaligned    = errors.New("dma: buffer address not 4-byte aligned")
	ErrMaskExceeded = errors.New("dma: buffer address exceeds device dma mask")
	errForeign      = errors.New("dma: buffer not owned by pool")
)

// PoolConfig configures a Pool.
type PoolConfig struct {
	// BlockSize is the largest buffer the pool hands out. Rounded up to a cache line.
	BlockSize int
	// Blocks is the number of buffers in the pool.
	Blocks int
	// Base is the bus address of the first block.
	Base Addr
	// Mask is the device DMA mask. Zero means all addresses are reachable.
	Mask Addr
}

// Stats are allocator call counters.
type Stats struct {
	Allocs      uint64
	AllocFailed uint64
	Frees       uint64
	Maps        uint64
	Unmaps      uint64
	InUse       int
	Mapped      int
}

// Pool is a fixed size block allocator backed by a single contiguous arena.
// Bus addresses are the arena offset relative to Base. Pool is safe for
// concurrent use.
type Pool struct {
	mu      sync.Mutex
	arena   []byte
	release func() error
	bufs    []Buffer
	free    []int32
	stride  int
	base    Addr
	mask    Addr
	stats   Stats
}

// NewPool allocates the arena for cfg.Blocks buffers.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BlockSize <= 0 || cfg.Blocks <= 0 {
		return nil, errors.New("dma: pool needs positive block size and count")
	}
	stride := int(alignup(uint(cfg.BlockSize), blockAlign))
	arena, release, err := newArena(stride * cfg.Blocks)
	if err != nil {
		return nil, errors.Join(errors.New("dma: arena allocation failed"), err)
	}
	p := &Pool{
		arena:   arena,
		release: release,
		bufs:    make([]Buffer, cfg.Blocks),
		free:    make([]int32, cfg.Blocks),
		stride:  stride,
		base:    cfg.Base,
		mask:    cfg.Mask,
	}
	for i := range p.bufs {
		off := i * stride
		p.bufs[i] = Buffer{data: arena[off : off+stride : off+stride], id: int32(i)}
		// Hand out low blocks first.
		p.free[i] = int32(cfg.Blocks - 1 - i)
	}
	return p, nil
}

// Alloc returns a buffer of length size or nil if the pool is exhausted or
// size does not fit in a block.
func (p *Pool) Alloc(size int) *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if size <= 0 || size > p.stride || len(p.free) == 0 {
		p.stats.AllocFailed++
		return nil
	}
	id := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	b := &p.bufs[id]
	b.inuse = true
	b.n = size
	p.stats.Allocs++
	p.stats.InUse++
	return b
}

// Free returns b to the pool. The buffer must not be mapped.
func (p *Pool) Free(b *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustOwn(b)
	if !b.inuse {
		panic("dma: double free of buffer " + strconv.Itoa(int(b.id)))
	}
	if b.m.mapped {
		panic("dma: free of mapped buffer " + strconv.Itoa(int(b.id)))
	}
	b.inuse = false
	b.n = 0
	p.free = append(p.free, b.id)
	p.stats.Frees++
	p.stats.InUse--
}

// Map establishes the device mapping of b and returns its bus address.
func (p *Pool) Map(b *Buffer, dir Direction) (Addr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustOwn(b)
	addr := p.base + Addr(int(b.id)*p.stride)
	if !isaligned(addr, 4) {
		return 0, ErrUnaligned
	}
	if p.mask != 0 && addr+Addr(p.stride)-1 > p.mask {
		return 0, ErrMaskExceeded
	}
	b.setMapped(addr, dir)
	p.stats.Maps++
	p.stats.Mapped++
	return addr, nil
}

// Unmap tears down the device mapping of b. Unmapping a buffer that is not
// mapped panics.
func (p *Pool) Unmap(b *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustOwn(b)
	b.clearMapping()
	p.stats.Unmaps++
	p.stats.Mapped--
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Available returns the number of free blocks.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Close releases the arena. Buffers must not be used after Close.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.release == nil {
		return nil
	}
	err := p.release()
	p.release = nil
	p.arena = nil
	return err
}

func (p *Pool) mustOwn(b *Buffer) {
	if b == nil || int(b.id) >= len(p.bufs) || &p.bufs[b.id] != b {
		panic(errForeign.Error())
	}
}
