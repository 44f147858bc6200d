package wcn3990

import "errors"

// Resource is a memory region described by the platform.
type Resource struct {
	Name  string
	Start uint64
	Size  int
}

// Platform supplies the resources of the device node.
type Platform interface {
	// Resource looks up a memory resource by name.
	Resource(name string) (Resource, bool)
	// IRQ returns the interrupt line of the i'th interrupt resource.
	IRQ(i int) (int, bool)
	// Map maps a memory resource into a register window.
	Map(res Resource) (RegisterWindow, error)
}

// IRQController registers interrupt handlers on interrupt lines.
type IRQController interface {
	RequestIRQ(line int, name string, handler func(line int)) error
	FreeIRQ(line int)
}

// StaticPlatform is a Platform with a fixed set of resources. Memory
// resources are backed by ordinary memory unless MapFunc is set.
type StaticPlatform struct {
	Mem     []Resource
	IRQs    []int
	MapFunc func(res Resource) (RegisterWindow, error)
}

func (p *StaticPlatform) Resource(name string) (Resource, bool) {
	for _, r := range p.Mem {
		if r.Name == name {
			return r, true
		}
	}
	return Resource{}, false
}

func (p *StaticPlatform) IRQ(i int) (int, bool) {
	if i < 0 || i >= len(p.IRQs) {
		return 0, false
	}
	return p.IRQs[i], true
}

func (p *StaticPlatform) Map(res Resource) (RegisterWindow, error) {
	if p.MapFunc != nil {
		return p.MapFunc(res)
	}
	if res.Size <= 0 {
		return nil, errors.New("empty memory resource " + res.Name)
	}
	return NewMemWindow(make([]byte, res.Size)), nil
}
