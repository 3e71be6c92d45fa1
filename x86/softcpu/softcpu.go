// Package softcpu is a software model of an x86-64 logical core with VMX.
//
// It implements x86.Processor closely enough to drive the hypervisor
// lifecycle without ring 0: VMX root operation, per-region VMCS storage
// with VMfailValid/VMfailInvalid reporting, capability MSRs, control
// registers and a live GDT. Tests use Poke and SetExit to stage VM exits
// and InjectFailure to make the next VMX instruction fail.
package softcpu

import (
	"encoding/binary"
	"errors"
	"unsafe"

	"github.com/hankjacobs/hypervisor/x86"
)

// Halted is the panic value raised by Halt.
var Halted = errors.New("softcpu: core halted")

// Op names a VMX instruction for failure injection.
type Op string

// VMX instructions that can be made to fail.
const (
	OpVMXON    Op = "vmxon"
	OpVMXOFF   Op = "vmxoff"
	OpVMCLEAR  Op = "vmclear"
	OpVMPTRLD  Op = "vmptrld"
	OpVMPTRST  Op = "vmptrst"
	OpVMREAD   Op = "vmread"
	OpVMWRITE  Op = "vmwrite"
	OpVMLAUNCH Op = "vmlaunch"
)

const invalidPointer = ^uint64(0)

type failure struct {
	fail  x86.VMFail
	code  uint64
	field uint32
	any   bool
}

type vmcs struct {
	fields   map[uint32]uint64
	launched bool
}

// CPU is a software logical core. It is not safe for concurrent use; like
// the hardware it models, each CPU belongs to one goroutine.
type CPU struct {
	id int

	cpuid map[uint64]x86.CPUIDResult
	msrs  map[uint32]uint64

	cr0, cr3, cr4 uint64
	dr7           uint64
	flags         uint64

	selectors x86.Selectors
	gdt       []uint64
	idt       x86.DescriptorTablePointer

	phys map[uint64][]byte

	vmxOn    bool
	vmxonPtr uint64
	current  uint64
	regions  map[uint64]*vmcs

	failures map[Op]failure

	// Launches counts successful VM entries.
	Launches int
	// Writes counts VMWRITE instructions that succeeded.
	Writes int
}

// New returns a core with the capabilities of a recent Intel part. VMX is
// available and enabled in a locked IA32_FEATURE_CONTROL.
func New(id int) *CPU {
	c := &CPU{
		id:       id,
		cpuid:    make(map[uint64]x86.CPUIDResult),
		msrs:     make(map[uint32]uint64),
		cr0:      0x80050033,
		cr3:      0x1ad000,
		cr4:      0x3606e0,
		dr7:      0x400,
		flags:    x86.RFlagsReserved | x86.RFlagsIF,
		phys:     make(map[uint64][]byte),
		current:  invalidPointer,
		regions:  make(map[uint64]*vmcs),
		failures: make(map[Op]failure),
	}

	c.SetCPUID(0, 0, x86.CPUIDResult{Eax: 0x16, Ebx: 0x756e6547, Ecx: 0x6c65746e, Edx: 0x49656e69})
	c.SetCPUID(x86.CPUIDLeafFeatureInfo, 0, x86.CPUIDResult{Eax: 0x000906ea, Ebx: 0x00100800 | uint32(id)<<24, Ecx: 0x7ffafbff, Edx: 0xbfebfbff})

	for msr, v := range map[uint32]uint64{
		x86.MSRIA32FeatureControl:        x86.FeatureControlLocked | x86.FeatureControlVMXOutsideSMX,
		x86.MSRIA32VMXBasic:              0x00da0400_00000004,
		x86.MSRIA32VMXPinBasedControls:   0x0000007f_00000016,
		x86.MSRIA32VMXProcBasedControls:  0xfff9fffe_0401e172,
		x86.MSRIA32VMXExitControls:       0x01ffffff_00036dff,
		x86.MSRIA32VMXEntryControls:      0x0003ffff_000011ff,
		x86.MSRIA32VMXMisc:               0x00000000_7004c1e7,
		x86.MSRIA32VMXCR0Fixed0:          0x80000021,
		x86.MSRIA32VMXCR0Fixed1:          0xffffffff,
		x86.MSRIA32VMXCR4Fixed0:          0x2000,
		x86.MSRIA32VMXCR4Fixed1:          0x3767ff,
		x86.MSRIA32VMXProcBasedControls2: 0x00553cfe_00000000,
		x86.MSRIA32EFER:                  0xd01,
		x86.MSRIA32FSBase:                0x7f3a_1c2d_4740,
		x86.MSRIA32GSBase:                0xffff_8880_7fa0_0000 + uint64(id)<<20,
		x86.MSRIA32SysenterCS:            0x10,
	} {
		c.msrs[msr] = v
	}

	c.selectors = x86.Selectors{CS: 0x10, DS: 0x18, ES: 0x18, SS: 0x18, TR: 0x40}
	c.setDefaultGDT()
	return c
}

// ID returns the core number passed to New.
func (c *CPU) ID() int { return c.id }

// SetCPUID sets the result of CPUID for a leaf and sub-leaf.
func (c *CPU) SetCPUID(leaf, subleaf uint32, r x86.CPUIDResult) {
	c.cpuid[uint64(leaf)<<32|uint64(subleaf)] = r
}

// SetMSR sets a model-specific register without side effects.
func (c *CPU) SetMSR(msr uint32, value uint64) { c.msrs[msr] = value }

// SetSelectors replaces the live segment selectors.
func (c *CPU) SetSelectors(s x86.Selectors) { c.selectors = s }

// SetFlags replaces RFLAGS.
func (c *CPU) SetFlags(flags uint64) { c.flags = flags | x86.RFlagsReserved }

// SetCR3 replaces CR3.
func (c *CPU) SetCR3(v uint64) { c.cr3 = v }

// SetGDT installs a new global descriptor table. The slice is retained and
// GDT reports its address, so the hypervisor can read it like live memory.
func (c *CPU) SetGDT(entries []uint64) { c.gdt = entries }

// setDefaultGDT builds a long-mode GDT shaped like the one Linux uses:
// kernel code and data at 0x10/0x18, user segments, and a busy 64-bit TSS
// at 0x40 spanning two slots.
func (c *CPU) setDefaultGDT() {
	tss := uint64(0xfffffe00_00003000) + uint64(c.id)<<16
	lo, hi := SystemDescriptor(tss, 0x67, 0x8b)
	c.SetGDT([]uint64{
		0,
		Descriptor(0, 0xfffff, 0x9b, 0xc), // 0x08 32-bit code
		Descriptor(0, 0xfffff, 0x9b, 0xa), // 0x10 kernel code
		Descriptor(0, 0xfffff, 0x93, 0xc), // 0x18 kernel data
		Descriptor(0, 0xfffff, 0xfb, 0xc), // 0x20 user 32-bit code
		Descriptor(0, 0xfffff, 0xf3, 0xc), // 0x28 user data
		Descriptor(0, 0xfffff, 0xfb, 0xa), // 0x30 user code
		0,
		lo, hi, // 0x40 TSS
	})
}

// Descriptor encodes an 8-byte segment descriptor. flags is the high
// nibble of byte 6 (G, D/B, L, AVL).
func Descriptor(base uint64, limit uint32, access, flags uint8) uint64 {
	return uint64(limit&0xffff) |
		(base&0xffffff)<<16 |
		uint64(access)<<40 |
		uint64((limit>>16)&0xf)<<48 |
		uint64(flags&0xf)<<52 |
		((base>>24)&0xff)<<56
}

// SystemDescriptor encodes a 16-byte long-mode system descriptor.
func SystemDescriptor(base uint64, limit uint32, access uint8) (lo, hi uint64) {
	return Descriptor(base, limit, access, 0), base >> 32
}

// MapPhys makes mem addressable at phys. VMX instructions that take a
// physical address only accept mapped addresses.
func (c *CPU) MapPhys(phys uint64, mem []byte) { c.phys[phys] = mem }

// UnmapPhys forgets a mapping made with MapPhys.
func (c *CPU) UnmapPhys(phys uint64) { delete(c.phys, phys) }

// InjectFailure makes the next execution of op fail. For VMFailValid the
// VM-instruction error field of the current VMCS is set to code.
func (c *CPU) InjectFailure(op Op, fail x86.VMFail, code uint64) {
	c.failures[op] = failure{fail: fail, code: code, any: true}
}

// InjectFieldFailure is InjectFailure for VMREAD or VMWRITE of one field.
func (c *CPU) InjectFieldFailure(op Op, field uint32, fail x86.VMFail, code uint64) {
	c.failures[op] = failure{fail: fail, code: code, field: field}
}

// injected consumes a pending failure for op and returns it.
func (c *CPU) injected(op Op, field uint32) error {
	f, ok := c.failures[op]
	if !ok || (!f.any && f.field != field) {
		return nil
	}
	delete(c.failures, op)
	if f.fail == x86.VMFailValid {
		return c.failValid(f.code)
	}
	return x86.VMFailInvalid
}

// InVMXOperation reports whether VMXON has succeeded without a VMXOFF.
func (c *CPU) InVMXOperation() bool { return c.vmxOn }

// CurrentVMCS returns the current-VMCS pointer, all ones if there is none.
func (c *CPU) CurrentVMCS() uint64 { return c.current }

// Launched reports whether the VMCS at phys has been launched.
func (c *CPU) Launched(phys uint64) bool {
	v, ok := c.regions[phys]
	return ok && v.launched
}

// Field reads a field of the current VMCS without VMREAD checks.
func (c *CPU) Field(field uint32) (uint64, bool) {
	v, ok := c.regions[c.current]
	if !ok {
		return 0, false
	}
	value, ok := v.fields[field]
	return value, ok
}

// Poke writes a field of the current VMCS, including read-only exit
// information fields. It panics if there is no current VMCS.
func (c *CPU) Poke(field uint32, value uint64) {
	v, ok := c.regions[c.current]
	if !ok {
		panic("softcpu: Poke without a current VMCS")
	}
	v.fields[field] = value
}

// VMCS encodings the model needs to know about.
const (
	fieldVMInstructionError = 0x4400
	fieldExitReason         = 0x4402
	fieldExitIntrInfo       = 0x4404
	fieldExitInstructionLen = 0x440c
	fieldExitQualification  = 0x6400
	fieldPinControls        = 0x4000
	fieldProcControls       = 0x4002
	fieldExitControls       = 0x400c
	fieldEntryControls      = 0x4012
	fieldSecondaryControls  = 0x401e
	fieldHostCR0            = 0x6c00
	fieldHostCR4            = 0x6c04
	fieldHostESSelector     = 0x0c00
	fieldHostTRSelector     = 0x0c0c
	fieldHostRIP            = 0x6c16
	fieldLinkPointer        = 0x2800
)

// SetExit stages a VM exit: basic reason, exit qualification and the
// length of the exiting instruction.
func (c *CPU) SetExit(reason, qualification, length uint64) {
	c.Poke(fieldExitReason, reason)
	c.Poke(fieldExitQualification, qualification)
	c.Poke(fieldExitInstructionLen, length)
}

// SetExitInterrupt stages the VM-exit interruption information of an
// acknowledged external interrupt.
func (c *CPU) SetExitInterrupt(vector uint8) {
	c.Poke(fieldExitIntrInfo, uint64(vector)|1<<31)
}

func (c *CPU) failValid(code uint64) error {
	v, ok := c.regions[c.current]
	if !ok {
		return x86.VMFailInvalid
	}
	v.fields[fieldVMInstructionError] = code
	return x86.VMFailValid
}

func (c *CPU) revision() uint32 {
	return uint32(c.msrs[x86.MSRIA32VMXBasic]) & 0x7fffffff
}

func (c *CPU) regionRevision(phys uint64) (uint32, bool) {
	mem, ok := c.phys[phys]
	if !ok || len(mem) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(mem), true
}

func validPhys(phys uint64) bool {
	return phys != 0 && x86.IsPageAligned(phys) && phys>>52 == 0
}

func (c *CPU) CPUID(leaf, subleaf uint32) x86.CPUIDResult {
	if r, ok := c.cpuid[uint64(leaf)<<32|uint64(subleaf)]; ok {
		return r
	}
	return c.cpuid[uint64(leaf)<<32]
}

func (c *CPU) ReadMSR(msr uint32) uint64 { return c.msrs[msr] }

func (c *CPU) WriteMSR(msr uint32, value uint64) {
	if msr == x86.MSRIA32FeatureControl && c.msrs[msr]&x86.FeatureControlLocked != 0 {
		// #GP on hardware; the write is dropped.
		return
	}
	c.msrs[msr] = value
}

func (c *CPU) ReadCR0() uint64       { return c.cr0 }
func (c *CPU) WriteCR0(value uint64) { c.cr0 = value }
func (c *CPU) ReadCR3() uint64       { return c.cr3 }
func (c *CPU) ReadCR4() uint64       { return c.cr4 }
func (c *CPU) WriteCR4(value uint64) { c.cr4 = value }
func (c *CPU) ReadDR7() uint64       { return c.dr7 }
func (c *CPU) ReadFlags() uint64     { return c.flags }

func (c *CPU) Selectors() x86.Selectors { return c.selectors }

func (c *CPU) GDT() x86.DescriptorTablePointer {
	if len(c.gdt) == 0 {
		return x86.DescriptorTablePointer{}
	}
	return x86.DescriptorTablePointer{
		Limit: uint16(len(c.gdt)*8 - 1),
		Base:  uint64(uintptr(unsafe.Pointer(&c.gdt[0]))),
	}
}

// SetIDT sets the value IDT reports.
func (c *CPU) SetIDT(p x86.DescriptorTablePointer) { c.idt = p }

func (c *CPU) IDT() x86.DescriptorTablePointer { return c.idt }

func (c *CPU) fixedBitsHold() bool {
	cr0Fixed0, cr0Fixed1 := c.msrs[x86.MSRIA32VMXCR0Fixed0], c.msrs[x86.MSRIA32VMXCR0Fixed1]
	cr4Fixed0, cr4Fixed1 := c.msrs[x86.MSRIA32VMXCR4Fixed0], c.msrs[x86.MSRIA32VMXCR4Fixed1]
	return c.cr0&cr0Fixed0 == cr0Fixed0 && c.cr0&^cr0Fixed1 == 0 &&
		c.cr4&cr4Fixed0 == cr4Fixed0 && c.cr4&^cr4Fixed1 == 0
}

func (c *CPU) VMXON(phys uint64) error {
	if err := c.injected(OpVMXON, 0); err != nil {
		return err
	}
	if c.cr4&x86.CR4VMXE == 0 {
		// #UD on hardware.
		return x86.VMFailInvalid
	}
	if c.vmxOn {
		return c.failValid(15)
	}
	fc := c.msrs[x86.MSRIA32FeatureControl]
	if fc&x86.FeatureControlLocked == 0 || fc&x86.FeatureControlVMXOutsideSMX == 0 || !c.fixedBitsHold() {
		// #GP on hardware.
		return x86.VMFailInvalid
	}
	if !validPhys(phys) {
		return x86.VMFailInvalid
	}
	if rev, ok := c.regionRevision(phys); !ok || rev != c.revision() {
		return x86.VMFailInvalid
	}
	c.vmxOn = true
	c.vmxonPtr = phys
	c.current = invalidPointer
	return nil
}

func (c *CPU) VMXOFF() error {
	if err := c.injected(OpVMXOFF, 0); err != nil {
		return err
	}
	if !c.vmxOn {
		return x86.VMFailInvalid
	}
	c.vmxOn = false
	c.vmxonPtr = 0
	c.current = invalidPointer
	return nil
}

func (c *CPU) VMCLEAR(phys uint64) error {
	if !c.vmxOn {
		return x86.VMFailInvalid
	}
	if err := c.injected(OpVMCLEAR, 0); err != nil {
		return err
	}
	if _, mapped := c.phys[phys]; !validPhys(phys) || !mapped {
		return c.failValid(2)
	}
	if phys == c.vmxonPtr {
		return c.failValid(3)
	}
	if v, ok := c.regions[phys]; ok {
		v.launched = false
	} else {
		c.regions[phys] = &vmcs{fields: make(map[uint32]uint64)}
	}
	if c.current == phys {
		c.current = invalidPointer
	}
	return nil
}

func (c *CPU) VMPTRLD(phys uint64) error {
	if !c.vmxOn {
		return x86.VMFailInvalid
	}
	if err := c.injected(OpVMPTRLD, 0); err != nil {
		return err
	}
	if !validPhys(phys) {
		return c.failValid(9)
	}
	if phys == c.vmxonPtr {
		return c.failValid(10)
	}
	rev, ok := c.regionRevision(phys)
	if !ok {
		return c.failValid(9)
	}
	if rev != c.revision() {
		return c.failValid(11)
	}
	if _, ok := c.regions[phys]; !ok {
		c.regions[phys] = &vmcs{fields: make(map[uint32]uint64)}
	}
	c.current = phys
	return nil
}

func (c *CPU) VMPTRST() (uint64, error) {
	if !c.vmxOn {
		return 0, x86.VMFailInvalid
	}
	if err := c.injected(OpVMPTRST, 0); err != nil {
		return 0, err
	}
	return c.current, nil
}

// Field encoding layout (Intel SDM appendix B): bit 0 access type, bits
// 9:1 index, bits 11:10 type, bits 14:13 width.
const (
	widthShift = 13
	width16    = 0
	width64    = 1
	width32    = 2
	typeShift  = 10
	typeExit   = 1
	reserved   = 0xffff8000 | 1<<12
)

func supportedField(field uint32) bool {
	if field&reserved != 0 {
		return false
	}
	// High access is only defined for 64-bit fields.
	return field&1 == 0 || (field>>widthShift)&3 == width64
}

func truncate(field uint32, value uint64) uint64 {
	switch (field >> widthShift) & 3 {
	case width16:
		return value & 0xffff
	case width32:
		return value & 0xffffffff
	}
	return value
}

func (c *CPU) VMREAD(field uint32) (uint64, error) {
	v, ok := c.regions[c.current]
	if !c.vmxOn || !ok {
		return 0, x86.VMFailInvalid
	}
	if err := c.injected(OpVMREAD, field); err != nil {
		return 0, err
	}
	if !supportedField(field) {
		return 0, c.failValid(12)
	}
	if field&1 == 1 {
		return v.fields[field&^1] >> 32, nil
	}
	return v.fields[field], nil
}

func (c *CPU) VMWRITE(field uint32, value uint64) error {
	v, ok := c.regions[c.current]
	if !c.vmxOn || !ok {
		return x86.VMFailInvalid
	}
	if err := c.injected(OpVMWRITE, field); err != nil {
		return err
	}
	if !supportedField(field) {
		return c.failValid(12)
	}
	if (field>>typeShift)&3 == typeExit {
		return c.failValid(13)
	}
	if field&1 == 1 {
		base := field &^ 1
		v.fields[base] = v.fields[base]&0xffffffff | value<<32
	} else {
		v.fields[field] = truncate(field, value)
	}
	c.Writes++
	return nil
}

// allowed reports whether ctl satisfies a capability MSR: every bit the
// low half requires is set and no bit outside the high half is set.
func (c *CPU) allowed(msr uint32, ctl uint64) bool {
	hi, lo := x86.Split(c.msrs[msr])
	return uint32(ctl)&lo == lo && uint32(ctl)&^hi == 0 && ctl>>32 == 0
}

// checkEntry applies a subset of the VM-entry checks of SDM chapter 26.
// It returns the VM-instruction error number, or 0.
func (c *CPU) checkEntry(v *vmcs) uint64 {
	f := v.fields
	if !c.allowed(x86.MSRIA32VMXPinBasedControls, f[fieldPinControls]) ||
		!c.allowed(x86.MSRIA32VMXProcBasedControls, f[fieldProcControls]) ||
		!c.allowed(x86.MSRIA32VMXExitControls, f[fieldExitControls]) ||
		!c.allowed(x86.MSRIA32VMXEntryControls, f[fieldEntryControls]) {
		return 7
	}
	if f[fieldProcControls]&(1<<31) != 0 && !c.allowed(x86.MSRIA32VMXProcBasedControls2, f[fieldSecondaryControls]) {
		return 7
	}
	cr0Fixed0, cr4Fixed0 := c.msrs[x86.MSRIA32VMXCR0Fixed0], c.msrs[x86.MSRIA32VMXCR4Fixed0]
	if f[fieldHostCR0]&cr0Fixed0 != cr0Fixed0 || f[fieldHostCR4]&cr4Fixed0 != cr4Fixed0 {
		return 8
	}
	for sel := uint32(fieldHostESSelector); sel <= fieldHostTRSelector; sel += 2 {
		if f[sel]&7 != 0 {
			return 8
		}
	}
	if f[fieldHostTRSelector] == 0 || f[fieldHostRIP] == 0 {
		return 8
	}
	if f[fieldLinkPointer] != invalidPointer {
		return 7
	}
	return 0
}

func (c *CPU) VMLAUNCH() error {
	v, ok := c.regions[c.current]
	if !c.vmxOn || !ok {
		return x86.VMFailInvalid
	}
	if err := c.injected(OpVMLAUNCH, 0); err != nil {
		return err
	}
	if v.launched {
		return c.failValid(4)
	}
	if code := c.checkEntry(v); code != 0 {
		return c.failValid(code)
	}
	v.launched = true
	c.Launches++
	return nil
}

func (c *CPU) DisableInterrupts() { c.flags &^= x86.RFlagsIF }
func (c *CPU) EnableInterrupts()  { c.flags |= x86.RFlagsIF }

// Halt panics with Halted after clearing the interrupt flag.
func (c *CPU) Halt() {
	c.DisableInterrupts()
	panic(Halted)
}

var _ x86.Processor = (*CPU)(nil)
