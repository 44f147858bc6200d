package wcn3990

import (
	"sync/atomic"
	"unsafe"
)

// RegisterWindow gives 32 bit access to the device register space.
type RegisterWindow interface {
	Read32(offset uint32) uint32
	Write32(offset, value uint32)
}

// MemWindow is a RegisterWindow over a byte slice, usually a mapping of
// device memory. Accesses are single 32 bit loads and stores.
type MemWindow struct {
	b       []byte
	release func() error
}

// NewMemWindow returns a window over b. b must be 4-byte aligned.
func NewMemWindow(b []byte) *MemWindow {
	if len(b) > 0 && uintptr(unsafe.Pointer(&b[0]))&3 != 0 {
		panic("wcn3990: unaligned register window")
	}
	return &MemWindow{b: b}
}

func (w *MemWindow) Read32(offset uint32) uint32 {
	return atomic.LoadUint32(w.word(offset))
}

func (w *MemWindow) Write32(offset, value uint32) {
	atomic.StoreUint32(w.word(offset), value)
}

// Len returns the size of the window in bytes.
func (w *MemWindow) Len() int { return len(w.b) }

// Close unmaps the window if it was mapped from a device file.
func (w *MemWindow) Close() error {
	if w.release == nil {
		return nil
	}
	err := w.release()
	w.release = nil
	w.b = nil
	return err
}

func (w *MemWindow) word(offset uint32) *uint32 {
	if offset&3 != 0 || uint64(offset)+4 > uint64(len(w.b)) {
		panic("wcn3990: register offset out of window")
	}
	return (*uint32)(unsafe.Pointer(&w.b[offset]))
}
