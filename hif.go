package wcn3990

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/soypat/wcn3990/ce"
	"github.com/soypat/wcn3990/dma"
)

// Start enables copy engine interrupts and fills every rx ring. Refill
// failures are handled internally and never returned.
func (d *Device) Start() error {
	d.ceLock.Lock()
	d.started = true
	d.ceLock.Unlock()
	d.engine.EnableInterrupts()
	d.rxPost()
	d.info("Start:done", slog.Int("pipes", d.npipes))
	return nil
}

// Stop disables copy engine interrupts, waits out the retry timer and
// releases every buffer held by the rings. After Stop returns no buffer
// is mapped on behalf of the device, and interrupt handlers still running
// no longer refill the rings.
func (d *Device) Stop() {
	d.engine.DisableInterrupts()
	d.bufferCleanup()
	d.info("Stop:done")
}

// Read32 reads the register at offset from the device memory window.
func (d *Device) Read32(offset uint32) uint32 {
	return d.regs().Read32(offset)
}

// Write32 writes value to the register at offset in the device memory window.
func (d *Device) Write32(offset, value uint32) {
	d.regs().Write32(offset, value)
}

func (d *Device) regs() RegisterWindow {
	if d.mem == nil {
		panic("wcn3990: register window not mapped")
	}
	return d.mem
}

// Send maps b for the device and posts it into the source ring of ceid.
// On success the buffer belongs to the bus layer until it comes back
// through Config.TxNotifier. b must come from the device's allocator.
func (d *Device) Send(ceid int, b *dma.Buffer) error {
	pipe := d.Pipe(ceid)
	if pipe == nil || pipe.hdl == nil {
		return errors.Join(ErrInternal, errors.New("pipe "+strconv.Itoa(ceid)+" not set up"))
	}
	if pipe.hdl.SrcRing == nil {
		return errors.Join(ErrInternal, ce.ErrNoRing)
	}
	if d.txdone == nil {
		return errors.New("send requires a tx notifier")
	}
	paddr, err := d.alloc.Map(b, dma.ToDevice)
	if err != nil {
		return errors.Join(ErrDeviceIO, err)
	}
	d.ceLock.Lock()
	err = d.engine.SendBuf(pipe.hdl, b, paddr)
	d.ceLock.Unlock()
	if err != nil {
		d.alloc.Unmap(b)
		if errors.Is(err, ce.ErrNoSpace) {
			return errors.Join(ErrNoCapacity, err)
		}
		return errors.Join(ErrDeviceIO, err)
	}
	return nil
}

// ServiceEngine reaps the completed buffers of copy engine ceid and refills
// its rx ring. Received payloads go to Config.RecvHandler, sent buffers to
// Config.TxNotifier. It is the body of the per engine interrupt handler.
func (d *Device) ServiceEngine(ceid int) error {
	pipe := d.Pipe(ceid)
	if pipe == nil || pipe.hdl == nil {
		return errors.Join(ErrInternal, errors.New("pipe "+strconv.Itoa(ceid)+" not set up"))
	}
	for {
		d.ceLock.Lock()
		b, ok := d.engine.RecvCompleted(pipe.hdl)
		if ok {
			pipe.completed++
		}
		d.ceLock.Unlock()
		if !ok {
			break
		}
		d.alloc.Unmap(b)
		if d.rcv != nil {
			if err := d.rcv(ceid, b.Bytes()); err != nil {
				d.debug("ServiceEngine:recv", slog.Int("ce", ceid), slog.String("err", err.Error()))
			}
		}
		d.alloc.Free(b)
	}
	for {
		d.ceLock.Lock()
		b, ok := d.engine.SendCompleted(pipe.hdl)
		d.ceLock.Unlock()
		if !ok {
			break
		}
		d.alloc.Unmap(b)
		d.txComplete(pipe, b)
	}
	d.rxPostPipe(pipe)
	return nil
}
