// Package wcn3990 implements the SNOC bus layer of the WCN3990 wifi chip.
//
// The bus layer owns one pipe per copy engine (CE). On Start it enables CE
// interrupts and fills every receive ring with DMA mapped buffers. Transient
// posting failures are retried after RxPostRetryDelay by a single coalescing
// timer. On Stop it disables interrupts, cancels the timer and releases every
// buffer still held by a ring.
//
// Typical lifecycle:
//
//	dev, err := wcn3990.Probe(engine, pool, wcn3990.ProbeConfig{...})
//	err = dev.Start()
//	...
//	dev.Stop()
//	dev.Remove()
package wcn3990

import (
	"log/slog"
	"sync"
	"time"

	"github.com/soypat/wcn3990/ce"
	"github.com/soypat/wcn3990/dma"
	"golang.org/x/time/rate"
)

// RxPostRetryDelay is the default delay before a failed rx refill is retried.
const RxPostRetryDelay = 50 * time.Millisecond

// DMAMaskBits is the addressing capability of the WCN3990 copy engines.
const DMAMaskBits = 37

// TransferEngine is the copy engine block as seen by the bus layer.
// Ring mutations issued through it are serialized by the Device.
type TransferEngine interface {
	AllocPipe(id int, attr ce.Attr) (*ce.Pipe, error)
	FreePipe(id int)
	// RxPostBuf hands a mapped buffer to the destination ring. Returns
	// ce.ErrNoSpace when the ring is full.
	RxPostBuf(p *ce.Pipe, b *dma.Buffer, addr dma.Addr) error
	RxNumFreeBufs(p *ce.Pipe) int
	SendBuf(p *ce.Pipe, b *dma.Buffer, addr dma.Addr) error
	RecvCompleted(p *ce.Pipe) (*dma.Buffer, bool)
	SendCompleted(p *ce.Pipe) (*dma.Buffer, bool)
	EnableInterrupts()
	DisableInterrupts()
}

// BufferAllocator allocates buffers and manages their device mappings.
type BufferAllocator interface {
	// Alloc returns nil when no buffer is available.
	Alloc(size int) *dma.Buffer
	Map(b *dma.Buffer, dir dma.Direction) (dma.Addr, error)
	Unmap(b *dma.Buffer)
	Free(b *dma.Buffer)
}

// TxNotifier receives transmit buffers back from the bus layer. The buffer
// is unmapped and owned by the notifier from then on.
type TxNotifier interface {
	TxCompleted(ceid int, b *dma.Buffer)
}

// TxNotifierFunc adapts a function to TxNotifier.
type TxNotifierFunc func(ceid int, b *dma.Buffer)

func (f TxNotifierFunc) TxCompleted(ceid int, b *dma.Buffer) { f(ceid, b) }

// Config configures the pipes of a Device.
type Config struct {
	// Table holds the copy engine attributes. Entry i configures pipe i.
	Table []ce.Attr
	// RetryDelay is the delay before a failed rx refill is retried.
	// Zero selects RxPostRetryDelay.
	RetryDelay time.Duration
	Logger     *slog.Logger
	// RecvHandler is called with the payload of each completed receive
	// buffer. The payload must not be retained after return.
	RecvHandler func(ceid int, payload []byte) error
	// TxNotifier gets back buffers submitted with Send. Send fails if nil.
	TxNotifier TxNotifier
}

// DefaultConfig returns the WCN3990 pipe configuration.
func DefaultConfig() Config {
	return Config{
		Table:      ce.DefaultTable(),
		RetryDelay: RxPostRetryDelay,
	}
}

// Pipe binds a copy engine to its buffer size and owning device.
type Pipe struct {
	Num int
	// BufSize is the rx buffer size. Zero means the pipe never gets rx buffers.
	BufSize int
	hdl     *ce.Pipe
	dev     *Device
	// Counters protected by Device.ceLock.
	posted    uint64
	completed uint64
	cleaned   uint64
}

// Device is the bus layer state for one WCN3990.
type Device struct {
	// ceLock serializes every ring mutation. Never held across buffer
	// allocation or mapping.
	ceLock     sync.Mutex
	pipes      [ce.CountMax]Pipe
	npipes     int
	engine     TransferEngine
	alloc      BufferAllocator
	rcv        func(ceid int, payload []byte) error
	txdone     TxNotifier
	// started gates rx refills. Protected by ceLock.
	started    bool
	retry      retryTimer
	retryDelay time.Duration
	mem        RegisterWindow
	irqctl     IRQController
	irqLines   [ce.CountMax]int
	nirqs      int
	logger     *slog.Logger
	warnLimit  *rate.Limiter
}

// New returns a Device that drives engine and takes rx buffers from alloc.
// Setup must be called before Start.
func New(engine TransferEngine, alloc BufferAllocator) *Device {
	d := &Device{
		engine:    engine,
		alloc:     alloc,
		warnLimit: rate.NewLimiter(rate.Every(time.Second), 10),
	}
	d.retry.fn = d.retryFire
	return d
}

// Pipe returns the registry entry of copy engine ceid.
func (d *Device) Pipe(ceid int) *Pipe {
	if ceid < 0 || ceid >= ce.CountMax {
		return nil
	}
	return &d.pipes[ceid]
}

// NumPipes returns the number of configured pipes.
func (d *Device) NumPipes() int { return d.npipes }

// Handle returns the engine pipe bound to p or nil before setup.
func (p *Pipe) Handle() *ce.Pipe { return p.hdl }

var (
	_ TransferEngine  = (*ce.Engine)(nil)
	_ IRQController   = (*ce.Engine)(nil)
	_ BufferAllocator = (*dma.Pool)(nil)
)
