package hypervisor

import (
	"fmt"
	"unsafe"

	"github.com/hankjacobs/hypervisor/x86"
)

// Region is a page of loader-owned memory handed to a VMX instruction.
// Mem is the host mapping; Phys is its physical address.
type Region struct {
	Mem  []byte
	Phys uint64
}

// Virt returns the address of the host mapping.
func (r Region) Virt() uintptr {
	if len(r.Mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&r.Mem[0]))
}

// Size returns the length of the region in bytes.
func (r Region) Size() int { return len(r.Mem) }

func (r Region) validate() error {
	if r.Virt() == 0 || !x86.IsPageAligned(uint64(r.Virt())) || !x86.IsPageAligned(r.Phys) {
		return fmt.Errorf("region %#x/%#x: not page aligned", r.Virt(), r.Phys)
	}
	if r.Size() > x86.PageSize || r.Size() <= 4 {
		return fmt.Errorf("region %#x: bad size %#x", r.Virt(), r.Size())
	}
	return nil
}

// VCpu is everything the hypervisor needs for one logical core. The loader
// allocates and owns it and every region it points at for as long as the
// hypervisor is loaded; the hypervisor never frees any of it.
//
// Self must stay the first field: the VM-exit entry point finds the VCpu
// through FS:0.
type VCpu struct {
	Self *VCpu

	ID int

	VMXONRegion Region
	VMCSRegion  Region

	// LoadedSuccessfully is set once the core is running as a guest.
	LoadedSuccessfully bool

	StackBase uintptr
	StackSize uintptr
	StackTop  uintptr

	HostGDTBase  uint64
	HostGDTLimit uint64

	// InterruptController must be zeroed. NewCore points its logging at
	// the core.
	InterruptController *VirtualLocalInterruptController

	// MSRBitmap is the physical address of a zeroed 4 KiB MSR bitmap.
	MSRBitmap uint64

	// TRBase and TRSelector describe a TSS the loader synthesized for
	// environments without a usable task register.
	TRBase     uint64
	TRSelector uint16

	core *Core
}

// Core returns the core loaded on v, or nil.
func (v *VCpu) Core() *Core { return v.core }

func (v *VCpu) validate() error {
	if err := v.VMXONRegion.validate(); err != nil {
		return fmt.Errorf("%w: vmxon %v", ErrInvalidVCpu, err)
	}
	if err := v.VMCSRegion.validate(); err != nil {
		return fmt.Errorf("%w: vmcs %v", ErrInvalidVCpu, err)
	}
	if v.StackTop == 0 || v.StackTop != v.StackBase+v.StackSize {
		return fmt.Errorf("%w: stack %#x+%#x top %#x", ErrInvalidVCpu, v.StackBase, v.StackSize, v.StackTop)
	}
	if v.InterruptController == nil {
		return fmt.Errorf("%w: no interrupt controller", ErrInvalidVCpu)
	}
	if !x86.IsPageAligned(v.MSRBitmap) {
		return fmt.Errorf("%w: msr bitmap %#x not page aligned", ErrInvalidVCpu, v.MSRBitmap)
	}
	return nil
}

func (v *VCpu) addr() uint64 { return uint64(uintptr(unsafe.Pointer(v))) }
