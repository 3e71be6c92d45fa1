// Package loader allocates and wires the per-core resources the hypervisor
// expects its loader to own: VMXON and VMCS regions, the host stack, the
// MSR bitmap and an optional task-state segment.
//
// Memory is mapped anonymously, so physical addresses are identity mapped
// to the host virtual addresses. That is what the software processor
// expects; a ring-0 loader would translate them instead.
package loader

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/hankjacobs/hypervisor"
	"github.com/hankjacobs/hypervisor/x86"
)

const (
	// DefaultStackSize is the host stack used on VM exits.
	DefaultStackSize = 0x8000

	// DefaultTSSSelector is where a synthesized TSS is expected in the GDT.
	DefaultTSSSelector = 0x40
)

// Options controls what Allocate sets up.
type Options struct {
	StackSize int
	// NoMSRBitmap leaves VCpu.MSRBitmap zero, which drops the MSR bitmap
	// control when the VMCS is built.
	NoMSRBitmap bool
	// TSS synthesizes a task-state segment for environments where the
	// live task register is unusable.
	TSS         bool
	TSSSelector uint16
	// Pin binds the calling thread to the core before loading it.
	Pin bool
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		StackSize:   DefaultStackSize,
		TSSSelector: DefaultTSSSelector,
	}
}

// physMapper is implemented by processors that need to be told which host
// memory backs a physical address.
type physMapper interface {
	MapPhys(phys uint64, mem []byte)
	UnmapPhys(phys uint64)
}

// Allocation is the memory behind one VCpu. It must outlive every use of
// the VCpu by the hypervisor.
type Allocation struct {
	VCpu *hypervisor.VCpu

	cpu      x86.Processor
	mappings [][]byte
	freed    bool
}

func (a *Allocation) mmap(size int) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap %#x: %w", size, err)
	}
	a.mappings = append(a.mappings, mem)
	return mem, nil
}

func (a *Allocation) page() (hypervisor.Region, error) {
	mem, err := a.mmap(x86.PageSize)
	if err != nil {
		return hypervisor.Region{}, err
	}
	r := hypervisor.Region{Mem: mem}
	r.Phys = uint64(r.Virt())
	if m, ok := a.cpu.(physMapper); ok {
		m.MapPhys(r.Phys, mem)
	}
	return r, nil
}

// Allocate builds a zeroed VCpu for core id on cpu.
func Allocate(id int, cpu x86.Processor, opts Options) (*Allocation, error) {
	if opts.StackSize <= 0 {
		opts.StackSize = DefaultStackSize
	}
	if opts.StackSize%x86.PageSize != 0 {
		return nil, fmt.Errorf("loader: stack size %#x not page aligned", opts.StackSize)
	}

	a := &Allocation{cpu: cpu}
	v, err := a.build(id, opts)
	if err != nil {
		a.Free()
		return nil, err
	}
	a.VCpu = v
	return a, nil
}

func (a *Allocation) build(id int, opts Options) (*hypervisor.VCpu, error) {
	v := &hypervisor.VCpu{
		ID:                  id,
		InterruptController: &hypervisor.VirtualLocalInterruptController{},
	}

	var err error
	if v.VMXONRegion, err = a.page(); err != nil {
		return nil, err
	}
	if v.VMCSRegion, err = a.page(); err != nil {
		return nil, err
	}

	stack, err := a.mmap(opts.StackSize)
	if err != nil {
		return nil, err
	}
	v.StackBase = hypervisor.Region{Mem: stack}.Virt()
	v.StackSize = uintptr(len(stack))
	v.StackTop = v.StackBase + v.StackSize

	if !opts.NoMSRBitmap {
		bitmap, err := a.page()
		if err != nil {
			return nil, err
		}
		v.MSRBitmap = bitmap.Phys
	}

	if opts.TSS {
		tss, err := a.mmap(x86.PageSize)
		if err != nil {
			return nil, err
		}
		v.TRBase = uint64(hypervisor.Region{Mem: tss}.Virt())
		v.TRSelector = opts.TSSSelector
	}

	gdt := a.cpu.GDT()
	v.HostGDTBase = gdt.Base
	v.HostGDTLimit = uint64(gdt.Limit)
	return v, nil
}

// Free unmaps everything Allocate mapped. The VCpu must no longer be in
// use.
func (a *Allocation) Free() error {
	if a.freed {
		return nil
	}
	a.freed = true
	m, _ := a.cpu.(physMapper)
	var first error
	for _, mem := range a.mappings {
		if m != nil {
			m.UnmapPhys(uint64(hypervisor.Region{Mem: mem}.Virt()))
		}
		if err := unix.Munmap(mem); err != nil && first == nil {
			first = err
		}
	}
	a.mappings = nil
	return first
}
