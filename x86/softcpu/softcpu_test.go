package softcpu

import (
	"encoding/binary"
	"errors"
	"testing"
	"unsafe"

	"github.com/hankjacobs/hypervisor/x86"
)

func page(t *testing.T, c *CPU, revision uint32) uint64 {
	t.Helper()
	mem := make([]byte, 2*x86.PageSize)
	off := x86.PageSize - int(uintptr(unsafe.Pointer(&mem[0]))%x86.PageSize)
	if off == x86.PageSize {
		off = 0
	}
	mem = mem[off : off+x86.PageSize]
	binary.LittleEndian.PutUint32(mem, revision)
	phys := uint64(uintptr(unsafe.Pointer(&mem[0])))
	c.MapPhys(phys, mem)
	return phys
}

func vmxReady(t *testing.T) *CPU {
	t.Helper()
	c := New(0)
	c.WriteCR4(c.ReadCR4() | x86.CR4VMXE)
	return c
}

func vmxOn(t *testing.T) (*CPU, uint64) {
	t.Helper()
	c := vmxReady(t)
	on := page(t, c, c.revision())
	if err := c.VMXON(on); err != nil {
		t.Fatalf("VMXON: %v", err)
	}
	return c, on
}

func withVMCS(t *testing.T) (*CPU, uint64) {
	t.Helper()
	c, _ := vmxOn(t)
	p := page(t, c, c.revision())
	if err := c.VMCLEAR(p); err != nil {
		t.Fatalf("VMCLEAR: %v", err)
	}
	if err := c.VMPTRLD(p); err != nil {
		t.Fatalf("VMPTRLD: %v", err)
	}
	return c, p
}

func instructionError(t *testing.T, c *CPU) uint64 {
	t.Helper()
	v, ok := c.Field(fieldVMInstructionError)
	if !ok {
		t.Fatalf("no VM-instruction error recorded")
	}
	return v
}

func TestVMXONPrerequisites(t *testing.T) {
	for _, tc := range []struct {
		name  string
		setup func(c *CPU)
		phys  func(t *testing.T, c *CPU) uint64
	}{
		{"no cr4.vmxe", func(c *CPU) { c.WriteCR4(c.ReadCR4() &^ x86.CR4VMXE) }, nil},
		{"feature control unlocked", func(c *CPU) { c.msrs[x86.MSRIA32FeatureControl] = 0 }, nil},
		{"vmx outside smx disabled", func(c *CPU) { c.msrs[x86.MSRIA32FeatureControl] = x86.FeatureControlLocked }, nil},
		{"cr0 fixed bits", func(c *CPU) { c.WriteCR0(c.ReadCR0() &^ 1) }, nil},
		{"bad revision", nil, func(t *testing.T, c *CPU) uint64 { return page(t, c, 7) }},
		{"unmapped", nil, func(*testing.T, *CPU) uint64 { return 0x1000 }},
		{"unaligned", nil, func(*testing.T, *CPU) uint64 { return 0x1008 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := vmxReady(t)
			if tc.setup != nil {
				tc.setup(c)
			}
			phys := func(t *testing.T, c *CPU) uint64 { return page(t, c, c.revision()) }
			if tc.phys != nil {
				phys = tc.phys
			}
			if err := c.VMXON(phys(t, c)); !errors.Is(err, x86.VMFailInvalid) {
				t.Errorf("VMXON = %v, want %v", err, x86.VMFailInvalid)
			}
			if c.InVMXOperation() {
				t.Errorf("in VMX operation after failed VMXON")
			}
		})
	}
}

func TestVMXONTwice(t *testing.T) {
	c, on := vmxOn(t)
	// No current VMCS, so the error number cannot be stored.
	if err := c.VMXON(on); !errors.Is(err, x86.VMFailInvalid) {
		t.Errorf("second VMXON = %v", err)
	}
}

func TestFeatureControlLocked(t *testing.T) {
	c := New(0)
	c.WriteMSR(x86.MSRIA32FeatureControl, 0)
	if c.ReadMSR(x86.MSRIA32FeatureControl)&x86.FeatureControlLocked == 0 {
		t.Errorf("write to a locked IA32_FEATURE_CONTROL took effect")
	}
}

func TestVMCLEARAndVMPTRLDErrors(t *testing.T) {
	c, p := withVMCS(t)
	on := c.vmxonPtr
	bad := page(t, c, 9)

	for _, tc := range []struct {
		name string
		op   func() error
		code uint64
	}{
		{"vmclear vmxon region", func() error { return c.VMCLEAR(on) }, 3},
		{"vmclear unmapped", func() error { return c.VMCLEAR(0x2000) }, 2},
		{"vmptrld vmxon region", func() error { return c.VMPTRLD(on) }, 10},
		{"vmptrld bad revision", func() error { return c.VMPTRLD(bad) }, 11},
		{"vmptrld invalid address", func() error { return c.VMPTRLD(0) }, 9},
	} {
		t.Run(tc.name, func(t *testing.T) {
			// The error number is stored in the current VMCS.
			if err := c.VMPTRLD(p); err != nil {
				t.Fatalf("VMPTRLD: %v", err)
			}
			if err := tc.op(); !errors.Is(err, x86.VMFailValid) {
				t.Fatalf("err = %v, want %v", err, x86.VMFailValid)
			}
			if got := instructionError(t, c); got != tc.code {
				t.Errorf("error number = %d, want %d", got, tc.code)
			}
		})
	}
}

func TestVMCLEARCurrent(t *testing.T) {
	c, p := withVMCS(t)
	if err := c.VMCLEAR(p); err != nil {
		t.Fatalf("VMCLEAR: %v", err)
	}
	if ptr, err := c.VMPTRST(); err != nil || ptr != invalidPointer {
		t.Errorf("VMPTRST = %#x, %v; want %#x", ptr, err, uint64(invalidPointer))
	}
	if _, err := c.VMREAD(fieldExitReason); !errors.Is(err, x86.VMFailInvalid) {
		t.Errorf("VMREAD without a current VMCS = %v", err)
	}
}

func TestVMWRITE(t *testing.T) {
	c, _ := withVMCS(t)

	// 16-bit field truncates.
	if err := c.VMWRITE(fieldHostESSelector, 0x12345); err != nil {
		t.Fatalf("VMWRITE: %v", err)
	}
	if v, _ := c.VMREAD(fieldHostESSelector); v != 0x2345 {
		t.Errorf("16-bit field = %#x", v)
	}

	// High access writes the upper half of a 64-bit field.
	if err := c.VMWRITE(fieldLinkPointer, 0xdeadbeef); err != nil {
		t.Fatalf("VMWRITE: %v", err)
	}
	if err := c.VMWRITE(fieldLinkPointer|1, 0xcafe); err != nil {
		t.Fatalf("VMWRITE high: %v", err)
	}
	if v, _ := c.VMREAD(fieldLinkPointer); v != 0xcafe_deadbeef {
		t.Errorf("64-bit field = %#x", v)
	}
	if v, _ := c.VMREAD(fieldLinkPointer | 1); v != 0xcafe {
		t.Errorf("high half = %#x", v)
	}

	if err := c.VMWRITE(fieldExitReason, 1); !errors.Is(err, x86.VMFailValid) {
		t.Errorf("VMWRITE of a read-only field = %v", err)
	} else if code := instructionError(t, c); code != 13 {
		t.Errorf("error number = %d, want 13", code)
	}

	if err := c.VMWRITE(0x1000, 1); !errors.Is(err, x86.VMFailValid) {
		t.Errorf("VMWRITE of an unsupported field = %v", err)
	} else if code := instructionError(t, c); code != 12 {
		t.Errorf("error number = %d, want 12", code)
	}

	if c.Writes != 3 {
		t.Errorf("Writes = %d, want 3", c.Writes)
	}
}

func TestInjectFieldFailure(t *testing.T) {
	c, _ := withVMCS(t)
	c.InjectFieldFailure(OpVMREAD, fieldExitQualification, x86.VMFailValid, 12)

	if _, err := c.VMREAD(fieldExitReason); err != nil {
		t.Errorf("VMREAD of another field = %v", err)
	}
	if _, err := c.VMREAD(fieldExitQualification); !errors.Is(err, x86.VMFailValid) {
		t.Errorf("VMREAD = %v, want %v", err, x86.VMFailValid)
	}
	if _, err := c.VMREAD(fieldExitQualification); err != nil {
		t.Errorf("failure was not consumed: %v", err)
	}
}

func TestVMLAUNCH(t *testing.T) {
	c, p := withVMCS(t)
	if err := c.VMLAUNCH(); !errors.Is(err, x86.VMFailValid) {
		t.Fatalf("VMLAUNCH of an empty VMCS = %v", err)
	}
	if code := instructionError(t, c); code != 7 {
		t.Errorf("error number = %d, want 7", code)
	}

	for field, v := range map[uint32]uint64{
		fieldPinControls:    0x16,
		fieldProcControls:   0x0401e172,
		fieldExitControls:   0x00036dff,
		fieldEntryControls:  0x000011ff,
		fieldHostCR0:        c.ReadCR0(),
		fieldHostCR4:        c.ReadCR4(),
		fieldHostTRSelector: 0x40,
		fieldHostRIP:        0xffffffff_81000000,
		fieldLinkPointer:    invalidPointer,
	} {
		c.Poke(field, v)
	}
	if err := c.VMLAUNCH(); err != nil {
		t.Fatalf("VMLAUNCH: %v (error %d)", err, instructionError(t, c))
	}
	if !c.Launched(p) || c.Launches != 1 {
		t.Errorf("Launched = %v, Launches = %d", c.Launched(p), c.Launches)
	}
	if err := c.VMLAUNCH(); !errors.Is(err, x86.VMFailValid) {
		t.Errorf("second VMLAUNCH = %v", err)
	} else if code := instructionError(t, c); code != 4 {
		t.Errorf("error number = %d, want 4", code)
	}
}

func TestVMXOFF(t *testing.T) {
	c, _ := withVMCS(t)
	if err := c.VMXOFF(); err != nil {
		t.Fatalf("VMXOFF: %v", err)
	}
	if c.InVMXOperation() || c.CurrentVMCS() != invalidPointer {
		t.Errorf("VMXOFF left VMX state behind")
	}
	if err := c.VMXOFF(); !errors.Is(err, x86.VMFailInvalid) {
		t.Errorf("second VMXOFF = %v", err)
	}
}

func TestHalt(t *testing.T) {
	c := New(0)
	defer func() {
		if r := recover(); r != Halted {
			t.Errorf("recovered %v, want %v", r, Halted)
		}
		if c.ReadFlags()&x86.RFlagsIF != 0 {
			t.Errorf("interrupts enabled after Halt")
		}
	}()
	c.Halt()
}

func TestDefaultGDT(t *testing.T) {
	c := New(3)
	gdt := c.GDT()
	if gdt.Limit != uint16(len(c.gdt)*8-1) {
		t.Errorf("limit = %#x", gdt.Limit)
	}
	if c.gdt[0x10/8] != Descriptor(0, 0xfffff, 0x9b, 0xa) {
		t.Errorf("kernel code descriptor = %#x", c.gdt[0x10/8])
	}
	lo, hi := c.gdt[0x40/8], c.gdt[0x48/8]
	wantLo, wantHi := SystemDescriptor(0xfffffe00_00033000, 0x67, 0x8b)
	if lo != wantLo || hi != wantHi {
		t.Errorf("tss descriptor = %#x:%#x, want %#x:%#x", hi, lo, wantHi, wantLo)
	}
}

func TestDescriptor(t *testing.T) {
	// Flat 64-bit kernel code segment as Linux sets it up.
	if got := Descriptor(0, 0xfffff, 0x9b, 0xa); got != 0x00af9b000000ffff {
		t.Errorf("Descriptor = %#x", got)
	}
}
