package ce

import (
	"errors"
	"strconv"
	"sync"

	"github.com/soypat/wcn3990/dma"
)

var (
	// ErrNoSpace is returned when posting into a ring with no free slot.
	ErrNoSpace = errors.New("ce: ring full")
	// ErrRingCorrupt is returned when ring bookkeeping and slot contents disagree.
	ErrRingCorrupt = errors.New("ce: ring slot occupied at write index")
	// ErrNoBuffer is returned by the device model when no posted buffer is
	// available to complete.
	ErrNoBuffer   = errors.New("ce: no posted buffer")
	ErrNoRing     = errors.New("ce: pipe has no ring in that direction")
	ErrBadAddr    = errors.New("ce: descriptor address does not match buffer mapping")
	ErrNoDescMem  = errors.New("ce: out of descriptor memory")
	errBadID      = errors.New("ce: copy engine id out of range")
	errAllocated  = errors.New("ce: pipe already allocated")
	errIRQInUse   = errors.New("ce: irq line already requested")
	errIRQUnknown = errors.New("ce: irq line not served by engine")
)

// Pipe is the per copy engine state handed out by AllocPipe.
type Pipe struct {
	ID       int
	Attr     Attr
	SrcRing  *Ring // nil if Attr.SrcEntries == 0
	DestRing *Ring // nil if Attr.DestEntries == 0
}

// EngineConfig configures a software Engine.
type EngineConfig struct {
	// DescriptorBudget limits the total ring entries the engine can allocate.
	// Zero means unlimited.
	DescriptorBudget int
	// IRQBase is the interrupt line of copy engine 0. Engine i raises line IRQBase+i.
	IRQBase int
}

// Engine is a software model of the copy engine block. It implements the
// host side operations a bus driver needs and exposes device side
// operations (Receive, CompleteSend) that stand in for the hardware.
// Engine is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	pipes    [CountMax]*Pipe
	budget   int
	inuse    int
	irqBase  int
	irqOn    bool
	handlers [CountMax]func(line int)
}

func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{budget: cfg.DescriptorBudget, irqBase: cfg.IRQBase}
}

// AllocPipe allocates the rings of copy engine id as described by attr.
func (e *Engine) AllocPipe(id int, attr Attr) (*Pipe, error) {
	if id < 0 || id >= CountMax {
		return nil, errBadID
	}
	if err := attr.Validate(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pipes[id] != nil {
		return nil, errAllocated
	}
	need := 0
	if attr.SrcEntries > 0 {
		need += roundupPow2(attr.SrcEntries)
	}
	if attr.DestEntries > 0 {
		need += roundupPow2(attr.DestEntries)
	}
	if e.budget > 0 && e.inuse+need > e.budget {
		return nil, ErrNoDescMem
	}
	p := &Pipe{ID: id, Attr: attr}
	if attr.SrcEntries > 0 {
		p.SrcRing = newRing(&e.mu, attr.SrcEntries)
	}
	if attr.DestEntries > 0 {
		p.DestRing = newRing(&e.mu, attr.DestEntries)
	}
	e.inuse += need
	e.pipes[id] = p
	return p, nil
}

// FreePipe releases the rings of copy engine id. Freeing a pipe that was
// never allocated does nothing.
func (e *Engine) FreePipe(id int) {
	if id < 0 || id >= CountMax {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.pipes[id]
	if p == nil {
		return
	}
	if p.SrcRing != nil {
		e.inuse -= p.SrcRing.Entries()
	}
	if p.DestRing != nil {
		e.inuse -= p.DestRing.Entries()
	}
	e.pipes[id] = nil
}

// Pipe returns the allocated pipe for id or nil.
func (e *Engine) Pipe(id int) *Pipe {
	if id < 0 || id >= CountMax {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pipes[id]
}

// RxPostBuf places b in the next free slot of the destination ring.
func (e *Engine) RxPostBuf(p *Pipe, b *dma.Buffer, addr dma.Addr) error {
	return e.post(p.DestRing, b, addr)
}

// SendBuf places b in the next free slot of the source ring.
func (e *Engine) SendBuf(p *Pipe, b *dma.Buffer, addr dma.Addr) error {
	return e.post(p.SrcRing, b, addr)
}

func (e *Engine) post(r *Ring, b *dma.Buffer, addr dma.Addr) error {
	if r == nil {
		return ErrNoRing
	}
	if got, ok := b.Mapping().Addr(); !ok || got != addr {
		return ErrBadAddr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.post(b, addr)
}

// RxNumFreeBufs returns the number of empty destination ring slots.
func (e *Engine) RxNumFreeBufs(p *Pipe) int {
	if p.DestRing == nil {
		return 0
	}
	return p.DestRing.Free()
}

// RecvCompleted removes the oldest destination buffer filled by the device.
func (e *Engine) RecvCompleted(p *Pipe) (*dma.Buffer, bool) {
	return e.reap(p.DestRing)
}

// SendCompleted removes the oldest source buffer consumed by the device.
func (e *Engine) SendCompleted(p *Pipe) (*dma.Buffer, bool) {
	return e.reap(p.SrcRing)
}

func (e *Engine) reap(r *Ring) (*dma.Buffer, bool) {
	if r == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.reap()
}

func (e *Engine) EnableInterrupts() {
	e.mu.Lock()
	e.irqOn = true
	e.mu.Unlock()
}

func (e *Engine) DisableInterrupts() {
	e.mu.Lock()
	e.irqOn = false
	e.mu.Unlock()
}

// RequestIRQ registers handler on line. Each copy engine raises its own line.
func (e *Engine) RequestIRQ(line int, name string, handler func(line int)) error {
	id := line - e.irqBase
	if id < 0 || id >= CountMax {
		return errors.Join(errIRQUnknown, errors.New(name+" line "+strconv.Itoa(line)))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers[id] != nil {
		return errIRQInUse
	}
	e.handlers[id] = handler
	return nil
}

func (e *Engine) FreeIRQ(line int) {
	id := line - e.irqBase
	if id < 0 || id >= CountMax {
		return
	}
	e.mu.Lock()
	e.handlers[id] = nil
	e.mu.Unlock()
}

// Receive models the device writing payload into the next posted
// destination buffer of engine id and raising its completion interrupt.
func (e *Engine) Receive(id int, payload []byte) error {
	e.mu.Lock()
	p, err := e.pipeLocked(id)
	if err == nil && p.DestRing == nil {
		err = ErrNoRing
	}
	var b *dma.Buffer
	if err == nil {
		b, err = p.DestRing.complete()
	}
	if err == nil && b.Mapping().Dir() != dma.FromDevice {
		err = ErrBadAddr
	}
	if err != nil {
		e.mu.Unlock()
		return err
	}
	n := copy(b.Bytes()[:b.Cap()], payload)
	b.SetLen(n)
	irq := e.irqLocked(p)
	e.mu.Unlock()
	if irq != nil {
		irq(e.irqBase + id)
	}
	return nil
}

// CompleteSend models the device consuming up to n posted source
// descriptors of engine id. It returns the number consumed.
func (e *Engine) CompleteSend(id int, n int) (int, error) {
	e.mu.Lock()
	p, err := e.pipeLocked(id)
	if err == nil && p.SrcRing == nil {
		err = ErrNoRing
	}
	if err != nil {
		e.mu.Unlock()
		return 0, err
	}
	done := 0
	for ; done < n; done++ {
		if _, err := p.SrcRing.complete(); err != nil {
			break
		}
	}
	var irq func(int)
	if done > 0 {
		irq = e.irqLocked(p)
	}
	e.mu.Unlock()
	if irq != nil {
		irq(e.irqBase + id)
	}
	return done, nil
}

func (e *Engine) pipeLocked(id int) (*Pipe, error) {
	if id < 0 || id >= CountMax {
		return nil, errBadID
	}
	p := e.pipes[id]
	if p == nil {
		return nil, errors.New("ce: pipe " + strconv.Itoa(id) + " not allocated")
	}
	return p, nil
}

func (e *Engine) irqLocked(p *Pipe) func(int) {
	if !e.irqOn || p.Attr.Flags&AttrDisIntr != 0 {
		return nil
	}
	return e.handlers[p.ID]
}
