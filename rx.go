package wcn3990

import (
	"errors"
	"log/slog"

	"github.com/soypat/wcn3990/ce"
	"github.com/soypat/wcn3990/dma"
)

// errStopped is returned by rxPostBuf once Stop has closed the refill gate.
var errStopped = errors.New("bus layer stopped")

// rxPostBuf allocates, maps and posts a single rx buffer into pipe's
// destination ring. Only the post itself runs under ceLock.
func (d *Device) rxPostBuf(pipe *Pipe) error {
	b := d.alloc.Alloc(pipe.BufSize)
	if b == nil {
		return ErrResourceExhausted
	}
	paddr, err := d.alloc.Map(b, dma.FromDevice)
	if err != nil {
		d.alloc.Free(b)
		d.warnLimited("rxPostBuf:dma-map", slog.Int("ce", pipe.Num), slog.String("err", err.Error()))
		return errors.Join(ErrDeviceIO, err)
	}

	d.ceLock.Lock()
	if d.started {
		err = d.engine.RxPostBuf(pipe.hdl, b, paddr)
	} else {
		err = errStopped
	}
	if err == nil {
		pipe.posted++
	}
	d.ceLock.Unlock()
	if err != nil {
		d.alloc.Unmap(b)
		d.alloc.Free(b)
		if err == errStopped {
			return err
		}
		if errors.Is(err, ce.ErrNoSpace) {
			return errors.Join(ErrNoCapacity, err)
		}
		return errors.Join(ErrDeviceIO, err)
	}
	return nil
}

// rxPostPipe fills every free slot of pipe's destination ring.
func (d *Device) rxPostPipe(pipe *Pipe) {
	if pipe.BufSize == 0 || pipe.hdl == nil || pipe.hdl.DestRing == nil {
		return
	}
	d.ceLock.Lock()
	num := 0
	if d.started {
		num = d.engine.RxNumFreeBufs(pipe.hdl)
	}
	d.ceLock.Unlock()

	for ; num > 0; num-- {
		err := d.rxPostBuf(pipe)
		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrNoCapacity):
			// Someone else filled the ring in the meantime.
			d.trace("rxPostPipe:ring-full", slog.Int("ce", pipe.Num))
		case errors.Is(err, ErrResourceExhausted):
			d.debug("rxPostPipe:out-of-buffers", slog.Int("ce", pipe.Num), slog.Int("unfilled", num))
		case err == errStopped:
			d.trace("rxPostPipe:stopped", slog.Int("ce", pipe.Num))
		default:
			d.warnLimited("rxPostPipe:post-failed", slog.Int("ce", pipe.Num), slog.String("err", err.Error()))
			// Stop clears started under ceLock before cancelSync.
			d.ceLock.Lock()
			if d.started {
				d.retry.arm(d.retryDelay)
			}
			d.ceLock.Unlock()
		}
		return
	}
}

// rxPost refills every configured pipe in copy engine order.
func (d *Device) rxPost() {
	for i := 0; i < d.npipes; i++ {
		d.rxPostPipe(&d.pipes[i])
	}
}

func (d *Device) retryFire() {
	d.trace("rxPost:retry")
	d.rxPost()
}
