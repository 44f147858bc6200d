// Package dma implements device-visible buffers and a block pool allocator
// that hands out bus addresses for them.
package dma

import "strconv"

// Addr is a bus address as seen by the device.
type Addr uint64

// Direction of a DMA mapping.
type Direction uint8

const (
	Bidirectional Direction = iota
	// ToDevice mappings are read by the device (host->target).
	ToDevice
	// FromDevice mappings are written by the device (target->host).
	FromDevice
)

func (d Direction) String() (s string) {
	switch d {
	case Bidirectional:
		s = "bidirectional"
	case ToDevice:
		s = "to-device"
	case FromDevice:
		s = "from-device"
	default:
		s = "Direction(" + strconv.Itoa(int(d)) + ")"
	}
	return s
}

// Mapping is the mapping state of a Buffer. The zero value is unmapped.
type Mapping struct {
	addr   Addr
	dir    Direction
	mapped bool
}

// Addr returns the bus address of the mapping and true if the buffer is mapped.
func (m Mapping) Addr() (Addr, bool) { return m.addr, m.mapped }

// Dir returns the direction the buffer was mapped with. Only valid if mapped.
func (m Mapping) Dir() Direction { return m.dir }

// IsMapped reports whether the mapping is established.
func (m Mapping) IsMapped() bool { return m.mapped }

// Buffer is a block of memory that may be handed to a device. A Buffer has
// a single owner at any time: the allocator's free list, a ring slot or the
// caller that allocated it.
type Buffer struct {
	data  []byte
	n     int
	id    int32
	inuse bool
	m     Mapping
}

// Bytes returns the buffer contents up to its current length.
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

// Len returns the length of the buffer contents.
func (b *Buffer) Len() int { return b.n }

// Cap returns the maximum length the buffer can hold.
func (b *Buffer) Cap() int { return len(b.data) }

// SetLen sets the contents length. Panics if n exceeds Cap.
func (b *Buffer) SetLen(n int) {
	if n < 0 || n > len(b.data) {
		panic("dma: SetLen out of range")
	}
	b.n = n
}

// Mapping returns the current mapping state of the buffer.
func (b *Buffer) Mapping() Mapping { return b.m }

func (b *Buffer) setMapped(addr Addr, dir Direction) {
	if b.m.mapped {
		panic("dma: buffer already mapped")
	}
	b.m = Mapping{addr: addr, dir: dir, mapped: true}
}

func (b *Buffer) clearMapping() {
	if !b.m.mapped {
		panic("dma: unmap of unmapped buffer")
	}
	b.m = Mapping{}
}
