package wcn3990

import (
	"errors"
	"io"
	"log/slog"
	"strconv"

	"github.com/soypat/wcn3990/ce"
)

// ProbeConfig holds what Probe needs beyond the pipe configuration.
type ProbeConfig struct {
	Config
	Platform Platform
	IRQ      IRQController
}

// Probe brings up the bus layer: it maps the "membase" register window,
// collects one interrupt line per copy engine, allocates the pipes and
// registers the per engine interrupt handlers. Any failure unwinds the
// steps already taken.
func Probe(engine TransferEngine, alloc BufferAllocator, cfg ProbeConfig) (*Device, error) {
	if cfg.Platform == nil || cfg.IRQ == nil {
		return nil, errors.Join(ErrConfigInvalid, errors.New("probe needs platform and irq controller"))
	}
	d := New(engine, alloc)
	d.logger = cfg.Logger
	d.irqctl = cfg.IRQ
	err := d.resourceInit(cfg.Platform, len(cfg.Table))
	if err != nil {
		d.warn("Probe:resource-init", slog.String("err", err.Error()))
		return nil, err
	}
	err = d.Setup(cfg.Config)
	if err != nil {
		d.warn("Probe:setup", slog.String("err", err.Error()))
		d.unmapMem()
		return nil, err
	}
	err = d.requestIRQs()
	if err != nil {
		d.warn("Probe:request-irq", slog.String("err", err.Error()))
		d.Teardown()
		d.unmapMem()
		return nil, err
	}
	d.debug("snoc probe")
	return d, nil
}

// Remove frees the interrupt handlers, releases the pipes and unmaps the
// register window. The device must be stopped.
func (d *Device) Remove() {
	d.debug("snoc remove")
	d.freeIRQs()
	d.Teardown()
	d.unmapMem()
}

func (d *Device) resourceInit(plat Platform, nce int) error {
	res, ok := plat.Resource("membase")
	if !ok {
		d.logerr("resourceInit:membase not found")
		return errors.Join(ErrConfigInvalid, errors.New("memory base not found"))
	}
	mem, err := plat.Map(res)
	if err != nil {
		d.logerr("resourceInit:ioremap", slog.Uint64("pa", res.Start), slog.String("err", err.Error()))
		return errors.Join(ErrConfigInvalid, err)
	}
	if nce > ce.CountMax {
		nce = ce.CountMax
	}
	for i := 0; i < nce; i++ {
		line, ok := plat.IRQ(i)
		if !ok {
			d.logerr("resourceInit:irq", slog.Int("ce", i))
			if c, ok := mem.(io.Closer); ok {
				c.Close()
			}
			return errors.Join(ErrConfigInvalid, errors.New("failed to get IRQ"+strconv.Itoa(i)))
		}
		d.irqLines[i] = line
	}
	d.mem = mem
	return nil
}

func (d *Device) requestIRQs() error {
	for id := 0; id < d.npipes; id++ {
		ceid := id
		err := d.irqctl.RequestIRQ(d.irqLines[id], ce.Name(id), func(int) { d.perEngineHandler(ceid) })
		if err != nil {
			d.logerr("requestIRQs", slog.Int("ce", id), slog.String("err", err.Error()))
			d.freeIRQs()
			return errors.Join(errors.New("failed to register IRQ handler for CE "+strconv.Itoa(id)), err)
		}
		d.nirqs = id + 1
	}
	return nil
}

func (d *Device) freeIRQs() {
	for id := d.nirqs - 1; id >= 0; id-- {
		d.irqctl.FreeIRQ(d.irqLines[id])
	}
	d.nirqs = 0
}

func (d *Device) perEngineHandler(ceid int) {
	if err := d.ServiceEngine(ceid); err != nil {
		d.logerr("perEngineHandler", slog.Int("ce", ceid), slog.String("err", err.Error()))
	}
}

func (d *Device) unmapMem() {
	if c, ok := d.mem.(io.Closer); ok {
		c.Close()
	}
	d.mem = nil
}
