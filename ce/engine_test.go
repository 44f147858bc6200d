package ce

import (
	"errors"
	"testing"

	"github.com/soypat/wcn3990/dma"
)

func newPool(t *testing.T, n int) *dma.Pool {
	t.Helper()
	p, err := dma.NewPool(dma.PoolConfig{BlockSize: 2048, Blocks: n})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func mapped(t *testing.T, pool *dma.Pool, dir dma.Direction) (*dma.Buffer, dma.Addr) {
	t.Helper()
	b := pool.Alloc(2048)
	if b == nil {
		t.Fatal("pool exhausted")
	}
	addr, err := pool.Map(b, dir)
	if err != nil {
		t.Fatal(err)
	}
	return b, addr
}

func TestDefaultTable(t *testing.T) {
	tbl := DefaultTable()
	if len(tbl) != Count {
		t.Fatalf("want %d entries, got %d", Count, len(tbl))
	}
	tbl[1].DestEntries = 0
	if DefaultTable()[1].DestEntries != 512 {
		t.Error("DefaultTable returned shared backing array")
	}
	if tbl[4].Flags&AttrDisIntr == 0 {
		t.Error("CE4 should have interrupts disabled")
	}
	if Name(11) != "WLAN_CE_11" {
		t.Error("bad name", Name(11))
	}
	for i, a := range tbl {
		if err := a.Validate(); err != nil {
			t.Errorf("CE%d: %v", i, err)
		}
	}
}

func TestAllocPipe(t *testing.T) {
	e := NewEngine(EngineConfig{DescriptorBudget: 64})
	p, err := e.AllocPipe(0, Attr{SrcEntries: 16, SrcSzMax: 2048, DestEntries: 3})
	if err != nil {
		t.Fatal(err)
	}
	if p.SrcRing.Entries() != 16 || p.DestRing.Entries() != 4 {
		t.Errorf("ring sizes %d %d", p.SrcRing.Entries(), p.DestRing.Entries())
	}
	if _, err = e.AllocPipe(0, Attr{}); err == nil {
		t.Error("double alloc succeeded")
	}
	if _, err = e.AllocPipe(1, Attr{DestEntries: 64}); !errors.Is(err, ErrNoDescMem) {
		t.Errorf("want ErrNoDescMem, got %v", err)
	}
	p2, err := e.AllocPipe(2, Attr{})
	if err != nil {
		t.Fatal(err)
	}
	if p2.SrcRing != nil || p2.DestRing != nil {
		t.Error("empty attr allocated rings")
	}
	e.FreePipe(0)
	e.FreePipe(0)
	e.FreePipe(5)
	if e.Pipe(0) != nil {
		t.Error("pipe still allocated after free")
	}
	if _, err = e.AllocPipe(1, Attr{DestEntries: 64}); err != nil {
		t.Error("budget not returned on free:", err)
	}
	if _, err = e.AllocPipe(CountMax, Attr{}); err == nil {
		t.Error("out of range id accepted")
	}
}

func TestRingPostFreeTake(t *testing.T) {
	pool := newPool(t, 8)
	e := NewEngine(EngineConfig{})
	p, _ := e.AllocPipe(1, Attr{SrcSzMax: 2048, DestEntries: 4})
	for i := 0; i < 4; i++ {
		b, addr := mapped(t, pool, dma.FromDevice)
		if err := e.RxPostBuf(p, b, addr); err != nil {
			t.Fatal(err)
		}
		if got, want := e.RxNumFreeBufs(p), 3-i; got != want {
			t.Errorf("free=%d want %d", got, want)
		}
	}
	b, addr := mapped(t, pool, dma.FromDevice)
	if err := e.RxPostBuf(p, b, addr); !errors.Is(err, ErrNoSpace) {
		t.Errorf("want ErrNoSpace, got %v", err)
	}
	if err := e.RxPostBuf(p, b, addr+4); !errors.Is(err, ErrBadAddr) {
		t.Errorf("want ErrBadAddr, got %v", err)
	}
	if err := e.SendBuf(p, b, addr); !errors.Is(err, ErrNoRing) {
		t.Errorf("want ErrNoRing, got %v", err)
	}
	r := p.DestRing
	if r.Resident() != 4 {
		t.Errorf("resident=%d", r.Resident())
	}
	for i := 0; i < r.Entries(); i++ {
		if r.Take(i) == nil {
			t.Errorf("slot %d empty", i)
		}
		if r.Take(i) != nil {
			t.Errorf("slot %d taken twice", i)
		}
	}
	if r.Free() != 4 || r.Resident() != 0 {
		t.Errorf("ring not empty after take: free=%d", r.Free())
	}
	// Indices rewound, ring usable again.
	if err := e.RxPostBuf(p, b, addr); err != nil {
		t.Error(err)
	}
	if r.Context(0) != b {
		t.Error("post after rewind did not use slot 0")
	}
}

func TestReceiveInterrupt(t *testing.T) {
	pool := newPool(t, 4)
	e := NewEngine(EngineConfig{IRQBase: 100})
	p, _ := e.AllocPipe(2, Attr{SrcSzMax: 2048, DestEntries: 2})
	var lines []int
	if err := e.RequestIRQ(102, Name(2), func(line int) { lines = append(lines, line) }); err != nil {
		t.Fatal(err)
	}
	if err := e.RequestIRQ(102, Name(2), func(int) {}); err == nil {
		t.Error("irq line requested twice")
	}
	if err := e.RequestIRQ(7, "bad", func(int) {}); err == nil {
		t.Error("foreign irq line accepted")
	}
	if err := e.Receive(2, []byte("x")); !errors.Is(err, ErrNoBuffer) {
		t.Errorf("want ErrNoBuffer, got %v", err)
	}
	b, addr := mapped(t, pool, dma.FromDevice)
	e.RxPostBuf(p, b, addr)

	if err := e.Receive(2, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if len(lines) != 0 {
		t.Error("interrupt raised while disabled")
	}
	got, ok := e.RecvCompleted(p)
	if !ok || got != b || string(got.Bytes()) != "hello" {
		t.Fatalf("reap got %v %v", ok, got)
	}
	if _, ok = e.RecvCompleted(p); ok {
		t.Error("reaped twice")
	}

	e.EnableInterrupts()
	e.RxPostBuf(p, b, addr)
	e.Receive(2, []byte("again"))
	if len(lines) != 1 || lines[0] != 102 {
		t.Errorf("lines=%v", lines)
	}
	e.FreeIRQ(102)
	if err := e.RequestIRQ(102, Name(2), func(int) {}); err != nil {
		t.Error("line not released:", err)
	}
}

func TestCompleteSendDisIntr(t *testing.T) {
	pool := newPool(t, 4)
	e := NewEngine(EngineConfig{})
	p, _ := e.AllocPipe(4, Attr{Flags: AttrDisIntr, SrcEntries: 4, SrcSzMax: 256})
	raised := 0
	e.RequestIRQ(4, Name(4), func(int) { raised++ })
	e.EnableInterrupts()
	for i := 0; i < 2; i++ {
		b, addr := mapped(t, pool, dma.ToDevice)
		if err := e.SendBuf(p, b, addr); err != nil {
			t.Fatal(err)
		}
	}
	n, err := e.CompleteSend(4, 5)
	if err != nil || n != 2 {
		t.Fatalf("completed %d, %v", n, err)
	}
	if raised != 0 {
		t.Error("interrupt raised on AttrDisIntr engine")
	}
	reaped := 0
	for {
		if _, ok := e.SendCompleted(p); !ok {
			break
		}
		reaped++
	}
	if reaped != 2 || p.SrcRing.Free() != 4 {
		t.Errorf("reaped=%d free=%d", reaped, p.SrcRing.Free())
	}
}
