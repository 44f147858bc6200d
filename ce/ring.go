package ce

import (
	"sync"

	"github.com/soypat/wcn3990/dma"
)

// Ring is a power-of-two sized descriptor ring. Each slot holds the transfer
// context of the descriptor, a buffer owned by the ring, or nil.
//
// Three free running indices walk the ring in order:
// sw <= hw <= write. Buffers in [sw,hw) are completed by hardware and wait
// to be reaped, buffers in [hw,write) are posted and owned by hardware.
type Ring struct {
	mu    *sync.Mutex // Shared with the owning Engine.
	ctx   []*dma.Buffer
	addrs []dma.Addr
	mask  uint32
	write uint32
	hw    uint32
	sw    uint32
	used  int
}

func newRing(mu *sync.Mutex, nentries int) *Ring {
	n := roundupPow2(nentries)
	return &Ring{
		mu:    mu,
		ctx:   make([]*dma.Buffer, n),
		addrs: make([]dma.Addr, n),
		mask:  uint32(n - 1),
	}
}

// Entries returns the number of slots in the ring.
func (r *Ring) Entries() int { return len(r.ctx) }

// Free returns the number of empty slots.
func (r *Ring) Free() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.free()
}

// Context returns the transfer context held in slot i or nil.
func (r *Ring) Context(i int) *dma.Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx[i]
}

// Take clears slot i and returns the buffer it held. Ownership of the buffer
// passes to the caller. Once the ring is empty its indices rewind.
func (r *Ring) Take(i int) *dma.Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.ctx[i]
	if b == nil {
		return nil
	}
	r.ctx[i] = nil
	r.addrs[i] = 0
	r.used--
	if r.used == 0 {
		r.write, r.hw, r.sw = 0, 0, 0
	}
	return b
}

// Resident returns the number of occupied slots by walking the ring.
func (r *Ring) Resident() (n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.ctx {
		if b != nil {
			n++
		}
	}
	return n
}

func (r *Ring) free() int { return len(r.ctx) - r.used }

func (r *Ring) post(b *dma.Buffer, addr dma.Addr) error {
	if r.free() == 0 {
		return ErrNoSpace
	}
	idx := r.write & r.mask
	if r.ctx[idx] != nil {
		return ErrRingCorrupt
	}
	r.ctx[idx] = b
	r.addrs[idx] = addr
	r.write++
	r.used++
	return nil
}

// complete advances the hardware index over one posted descriptor.
func (r *Ring) complete() (*dma.Buffer, error) {
	if r.hw == r.write {
		return nil, ErrNoBuffer
	}
	b := r.ctx[r.hw&r.mask]
	if b == nil {
		return nil, ErrNoBuffer
	}
	r.hw++
	return b, nil
}

// reap removes the oldest completed buffer.
func (r *Ring) reap() (*dma.Buffer, bool) {
	if r.sw == r.hw {
		return nil, false
	}
	idx := r.sw & r.mask
	b := r.ctx[idx]
	r.sw++
	if b == nil {
		return nil, false
	}
	r.ctx[idx] = nil
	r.addrs[idx] = 0
	r.used--
	if r.used == 0 {
		r.write, r.hw, r.sw = 0, 0, 0
	}
	return b, true
}

func roundupPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
