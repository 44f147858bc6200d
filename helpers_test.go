package wcn3990

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soypat/wcn3990/ce"
	"github.com/soypat/wcn3990/dma"
)

// countingAlloc wraps a dma.Pool, counts calls and injects failures.
type countingAlloc struct {
	pool *dma.Pool

	mu          sync.Mutex
	allocs      int
	maps        int
	unmaps      int
	frees       int
	failAllocAt int // Alloc call number that fails, 0 for never.
	failMaps    int // Number of upcoming Map calls that fail.
}

func newCountingAlloc(t *testing.T, blocks int) *countingAlloc {
	t.Helper()
	pool, err := dma.NewPool(dma.PoolConfig{BlockSize: 2048, Blocks: blocks, Base: 0x4000_0000, Mask: dma.MaskBits(DMAMaskBits)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pool.Close() })
	return &countingAlloc{pool: pool}
}

func (a *countingAlloc) Alloc(size int) *dma.Buffer {
	a.mu.Lock()
	a.allocs++
	fail := a.allocs == a.failAllocAt
	a.mu.Unlock()
	if fail {
		return nil
	}
	return a.pool.Alloc(size)
}

func (a *countingAlloc) Map(b *dma.Buffer, dir dma.Direction) (dma.Addr, error) {
	a.mu.Lock()
	a.maps++
	fail := a.failMaps > 0
	if fail {
		a.failMaps--
	}
	a.mu.Unlock()
	if fail {
		return 0, dma.ErrMaskExceeded
	}
	return a.pool.Map(b, dir)
}

func (a *countingAlloc) Unmap(b *dma.Buffer) {
	a.mu.Lock()
	a.unmaps++
	a.mu.Unlock()
	a.pool.Unmap(b)
}

func (a *countingAlloc) Free(b *dma.Buffer) {
	a.mu.Lock()
	a.frees++
	a.mu.Unlock()
	a.pool.Free(b)
}

type allocCounts struct{ allocs, maps, unmaps, frees int }

func (a *countingAlloc) counts() allocCounts {
	a.mu.Lock()
	defer a.mu.Unlock()
	return allocCounts{a.allocs, a.maps, a.unmaps, a.frees}
}

// faultEngine wraps the software engine to inject rx post failures.
type faultEngine struct {
	*ce.Engine
	mu        sync.Mutex
	failPosts int // Number of upcoming posts that fail, -1 for all.
	postErr   error
	extraFree int // Added to the reported free count to fake a lost race.
}

func (fe *faultEngine) RxPostBuf(p *ce.Pipe, b *dma.Buffer, addr dma.Addr) error {
	fe.mu.Lock()
	fail := fe.failPosts != 0
	if fe.failPosts > 0 {
		fe.failPosts--
	}
	fe.mu.Unlock()
	if fail {
		return fe.postErr
	}
	return fe.Engine.RxPostBuf(p, b, addr)
}

func (fe *faultEngine) RxNumFreeBufs(p *ce.Pipe) int {
	return fe.Engine.RxNumFreeBufs(p) + fe.extraFree
}

func (fe *faultEngine) setFailPosts(n int) {
	fe.mu.Lock()
	fe.failPosts = n
	fe.mu.Unlock()
}

// syncBuffer is a bytes.Buffer safe for the retry goroutine to log into.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *syncBuffer) hasLevel(level slog.Level) bool {
	return strings.Contains(s.String(), "level="+level.String())
}

type testDevice struct {
	*Device
	engine *faultEngine
	alloc  *countingAlloc
	log    *syncBuffer
	sent   chan *dma.Buffer
}

func rxTable(entries int) []ce.Attr {
	return []ce.Attr{{SrcSzMax: 2048, DestEntries: entries}}
}

func newTestDevice(t *testing.T, table []ce.Attr) *testDevice {
	t.Helper()
	td := &testDevice{
		engine: &faultEngine{Engine: ce.NewEngine(ce.EngineConfig{})},
		alloc:  newCountingAlloc(t, 4096),
		log:    &syncBuffer{},
		sent:   make(chan *dma.Buffer, 64),
	}
	td.Device = New(td.engine, td.alloc)
	err := td.Setup(Config{
		Table:      table,
		RetryDelay: 5 * time.Millisecond,
		Logger:     slog.New(slog.NewTextHandler(td.log, &slog.HandlerOptions{Level: levelTrace})),
		TxNotifier: TxNotifierFunc(func(ceid int, b *dma.Buffer) { td.sent <- b }),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(td.Teardown)
	return td
}

func (td *testDevice) resident() (n int) {
	for _, ps := range td.Stats().Pipes {
		n += ps.Resident
	}
	return n
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}
