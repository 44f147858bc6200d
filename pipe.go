package wcn3990

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/soypat/wcn3990/ce"
)

// Setup allocates the rings of every copy engine in cfg.Table and binds them
// to the pipe registry. If any ring cannot be allocated the pipes already
// allocated are released and the error is returned.
func (d *Device) Setup(cfg Config) error {
	if d.npipes != 0 {
		return errors.Join(ErrInternal, errors.New("pipes already set up"))
	}
	if len(cfg.Table) > ce.CountMax {
		return errors.Join(ErrConfigInvalid, errors.New("ce table has "+strconv.Itoa(len(cfg.Table))+" entries"))
	}
	d.logger = cfg.Logger
	d.rcv = cfg.RecvHandler
	d.txdone = cfg.TxNotifier
	d.retryDelay = cfg.RetryDelay
	if d.retryDelay <= 0 {
		d.retryDelay = RxPostRetryDelay
	}
	for i, attr := range cfg.Table {
		pipe := &d.pipes[i]
		pipe.Num = i
		pipe.dev = d
		hdl, err := d.engine.AllocPipe(i, attr)
		if err != nil {
			d.logerr("Setup:alloc-pipe", slog.Int("ce", i), slog.String("err", err.Error()))
			d.releasePipes()
			return errors.Join(errors.New("failed to allocate copy engine pipe "+strconv.Itoa(i)), err)
		}
		pipe.hdl = hdl
		pipe.BufSize = attr.SrcSzMax
		d.npipes = i + 1
	}
	d.debug("Setup:done", slog.Int("pipes", d.npipes))
	return nil
}

// Teardown releases any buffers still in the rings and frees every ring in
// copy engine order. Entries never allocated are skipped, so Teardown is
// safe after a failed Setup and when called more than once.
func (d *Device) Teardown() {
	d.bufferCleanup()
	d.releasePipes()
}

func (d *Device) releasePipes() {
	for i := range d.pipes {
		pipe := &d.pipes[i]
		if pipe.hdl == nil {
			continue
		}
		d.engine.FreePipe(i)
		*pipe = Pipe{Num: i}
	}
	d.npipes = 0
}

// PipeStats are per pipe buffer counters.
type PipeStats struct {
	// Posted counts rx buffers handed to the destination ring.
	Posted uint64
	// Completed counts rx buffers reaped after the device filled them.
	Completed uint64
	// Cleaned counts buffers released by cleanup, both directions.
	Cleaned uint64
	// Resident is the number of buffers currently held by the pipe's rings.
	Resident int
}

// Stats is a snapshot of the bus layer counters.
type Stats struct {
	Pipes        []PipeStats
	RetryFirings uint64
}

// Stats returns the current counters of every configured pipe.
func (d *Device) Stats() Stats {
	st := Stats{
		Pipes:        make([]PipeStats, d.npipes),
		RetryFirings: d.retry.firingCount(),
	}
	d.ceLock.Lock()
	defer d.ceLock.Unlock()
	for i := range st.Pipes {
		pipe := &d.pipes[i]
		ps := PipeStats{Posted: pipe.posted, Completed: pipe.completed, Cleaned: pipe.cleaned}
		if pipe.hdl != nil {
			if r := pipe.hdl.SrcRing; r != nil {
				ps.Resident += r.Resident()
			}
			if r := pipe.hdl.DestRing; r != nil {
				ps.Resident += r.Resident()
			}
		}
		st.Pipes[i] = ps
	}
	return st
}
