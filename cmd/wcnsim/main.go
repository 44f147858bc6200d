// Command wcnsim drives the WCN3990 bus layer against the software copy
// engine through start, traffic and stop cycles and reports buffer counters.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/soypat/wcn3990"
	"github.com/soypat/wcn3990/ce"
	"github.com/soypat/wcn3990/dma"
)

const irqBase = 64

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "wcnsim - Exercise the WCN3990 SNOC bus layer on a simulated copy engine.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	tablePath := flag.String("table", "", "YAML copy engine table. Default is the WCN3990 table.")
	cycles := flag.Int("cycles", 2, "Number of start/stop cycles.")
	packets := flag.Int("packets", 1000, "Packets received per cycle, spread over rx pipes.")
	sends := flag.Int("sends", 16, "Buffers sent per cycle on each tx pipe.")
	blocks := flag.Int("blocks", 4096, "Number of DMA buffers in the pool.")
	budget := flag.Int("budget", 0, "Descriptor budget of the copy engine, 0 for unlimited.")
	uio := flag.String("uio", "", "Map registers from this UIO device instead of memory (linux only).")
	verbose := flag.Bool("v", false, "Debug logging.")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg := wcn3990.DefaultConfig()
	if *tablePath != "" {
		table, delay, err := loadTable(*tablePath)
		if err != nil {
			log.Fatal("loading table: ", err)
		}
		cfg.Table = table
		if delay > 0 {
			cfg.RetryDelay = delay
		}
	}
	cfg.Logger = logger

	err := run(logger, cfg, simParams{
		cycles:  *cycles,
		packets: *packets,
		sends:   *sends,
		blocks:  *blocks,
		budget:  *budget,
		uio:     *uio,
	})
	if err != nil {
		log.Fatal(err)
	}
}

type simParams struct {
	cycles  int
	packets int
	sends   int
	blocks  int
	budget  int
	uio     string
}

func run(logger *slog.Logger, cfg wcn3990.Config, p simParams) error {
	bufSize := 0
	for _, attr := range cfg.Table {
		bufSize = max(bufSize, attr.SrcSzMax)
	}
	if bufSize == 0 {
		return errors.New("table has no buffers")
	}
	pool, err := dma.NewPool(dma.PoolConfig{
		BlockSize: bufSize,
		Blocks:    p.blocks,
		Base:      0x8000_0000,
		Mask:      dma.MaskBits(wcn3990.DMAMaskBits),
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	engine := ce.NewEngine(ce.EngineConfig{DescriptorBudget: p.budget, IRQBase: irqBase})
	plat := &wcn3990.StaticPlatform{
		Mem: []wcn3990.Resource{{Name: "membase", Start: 0x1880_0000, Size: 0x80_0000}},
	}
	for i := range cfg.Table {
		plat.IRQs = append(plat.IRQs, irqBase+i)
	}
	if p.uio != "" {
		plat.MapFunc = func(res wcn3990.Resource) (wcn3990.RegisterWindow, error) {
			return openUIO(p.uio, res.Size)
		}
	}

	var received, returned int
	cfg.RecvHandler = func(ceid int, payload []byte) error {
		received++
		return nil
	}
	cfg.TxNotifier = wcn3990.TxNotifierFunc(func(ceid int, b *dma.Buffer) {
		returned++
		pool.Free(b)
	})

	dev, err := wcn3990.Probe(engine, pool, wcn3990.ProbeConfig{Config: cfg, Platform: plat, IRQ: engine})
	if err != nil {
		return err
	}
	defer dev.Remove()

	var rxPipes, txPipes []int
	for i, attr := range cfg.Table {
		if attr.DestEntries > 0 && attr.SrcSzMax > 0 {
			rxPipes = append(rxPipes, i)
		}
		if attr.SrcEntries > 0 && attr.SrcSzMax > 0 {
			txPipes = append(txPipes, i)
		}
	}

	for cycle := 0; cycle < p.cycles; cycle++ {
		start := time.Now()
		if err := dev.Start(); err != nil {
			return err
		}
		dropped := 0
		for n := 0; n < p.packets && len(rxPipes) > 0; n++ {
			ceid := rxPipes[n%len(rxPipes)]
			err := engine.Receive(ceid, []byte("pkt-"+strconv.Itoa(n)))
			if err != nil {
				dropped++
			}
		}
		for _, ceid := range txPipes {
			sendSz := min(cfg.Table[ceid].SrcSzMax, 64)
			for n := 0; n < p.sends; n++ {
				b := pool.Alloc(sendSz)
				if b == nil {
					break
				}
				if err := dev.Send(ceid, b); err != nil {
					pool.Free(b)
					break
				}
			}
			// Leave half of the sends in flight for Stop to clean up.
			if _, err := engine.CompleteSend(ceid, p.sends/2); err != nil {
				return err
			}
		}
		st := dev.Stats()
		dev.Stop()
		logCycle(logger, cycle, st, dropped, time.Since(start))
	}
	pst := pool.Stats()
	logger.Info("wcnsim:done",
		slog.Int("received", received),
		slog.Int("tx-returned", returned),
		slog.Uint64("allocs", pst.Allocs),
		slog.Uint64("unmaps", pst.Unmaps),
		slog.Int("mapped", pst.Mapped),
		slog.Int("inuse", pst.InUse),
	)
	if pst.Mapped != 0 || pst.InUse != 0 {
		return errors.New("buffers leaked after stop")
	}
	return nil
}

func logCycle(logger *slog.Logger, cycle int, st wcn3990.Stats, dropped int, took time.Duration) {
	var posted, completed, resident uint64
	for _, ps := range st.Pipes {
		posted += ps.Posted
		completed += ps.Completed
		resident += uint64(ps.Resident)
	}
	logger.Info("wcnsim:cycle",
		slog.Int("cycle", cycle),
		slog.Uint64("posted", posted),
		slog.Uint64("completed", completed),
		slog.Uint64("resident-before-stop", resident),
		slog.Uint64("retries", st.RetryFirings),
		slog.Int("dropped", dropped),
		slog.Duration("took", took),
	)
}
