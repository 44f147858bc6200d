package wcn3990

import (
	"log/slog"

	"github.com/soypat/wcn3990/dma"
)

// rxPipeCleanup releases every buffer held by pipe's destination ring.
func (d *Device) rxPipeCleanup(pipe *Pipe) {
	if pipe.hdl == nil || pipe.BufSize == 0 {
		return
	}
	r := pipe.hdl.DestRing
	if r == nil {
		return
	}
	for i := 0; i < r.Entries(); i++ {
		b := d.takeSlot(pipe, r.Take, i)
		if b == nil {
			continue
		}
		d.alloc.Unmap(b)
		d.alloc.Free(b)
	}
}

// txPipeCleanup returns every buffer held by pipe's source ring to the
// transmit notifier. Transmit buffers belong to the sender and are never
// freed here.
func (d *Device) txPipeCleanup(pipe *Pipe) {
	if pipe.hdl == nil || pipe.BufSize == 0 {
		return
	}
	r := pipe.hdl.SrcRing
	if r == nil {
		return
	}
	for i := 0; i < r.Entries(); i++ {
		b := d.takeSlot(pipe, r.Take, i)
		if b == nil {
			continue
		}
		d.alloc.Unmap(b)
		d.txComplete(pipe, b)
	}
}

// takeSlot clears slot i under ceLock and returns the buffer it held.
func (d *Device) takeSlot(pipe *Pipe, take func(int) *dma.Buffer, i int) *dma.Buffer {
	d.ceLock.Lock()
	defer d.ceLock.Unlock()
	b := take(i)
	if b != nil {
		pipe.cleaned++
	}
	return b
}

func (d *Device) txComplete(pipe *Pipe, b *dma.Buffer) {
	if d.txdone == nil {
		d.logerr("txComplete:no-notifier", slog.Int("ce", pipe.Num))
		return
	}
	d.txdone.TxCompleted(pipe.Num, b)
}

// bufferCleanup closes the refill gate, stops the retry timer and drains
// the rings of every pipe. The timer must be quiet before any buffer is
// released.
func (d *Device) bufferCleanup() {
	d.ceLock.Lock()
	d.started = false
	d.ceLock.Unlock()
	d.retry.cancelSync()
	for i := 0; i < d.npipes; i++ {
		pipe := &d.pipes[i]
		d.rxPipeCleanup(pipe)
		d.txPipeCleanup(pipe)
	}
}
