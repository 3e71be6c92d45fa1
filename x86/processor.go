// Package x86 wraps the privileged x86-64 instructions the hypervisor
// needs: VMX root-operation instructions, control and debug registers,
// model-specific registers, segment selectors and descriptor tables.
//
// Every instruction is reached through the Processor interface so the
// hypervisor core can run against real hardware (Native) or against a
// software model (package softcpu).
package x86

// CPUIDResult holds the four output registers of CPUID.
type CPUIDResult struct {
	Eax, Ebx, Ecx, Edx uint32
}

// DescriptorTablePointer is the value stored by SGDT or SIDT.
type DescriptorTablePointer struct {
	Limit uint16
	Base  uint64
}

// Selectors holds the live segment selectors of the processor.
type Selectors struct {
	CS, DS, ES, FS, GS, SS uint16
	TR, LDTR               uint16
}

// Processor is the set of privileged operations available to the
// hypervisor on the current logical core.
//
// VMX instructions report failure as a VMFail. All other operations
// either complete or fault in hardware.
type Processor interface {
	CPUID(leaf, subleaf uint32) CPUIDResult

	ReadMSR(msr uint32) uint64
	WriteMSR(msr uint32, value uint64)

	ReadCR0() uint64
	WriteCR0(value uint64)
	ReadCR3() uint64
	ReadCR4() uint64
	WriteCR4(value uint64)
	ReadDR7() uint64
	ReadFlags() uint64

	Selectors() Selectors
	GDT() DescriptorTablePointer
	IDT() DescriptorTablePointer

	VMXON(phys uint64) error
	VMXOFF() error
	VMCLEAR(phys uint64) error
	VMPTRLD(phys uint64) error
	VMPTRST() (uint64, error)
	VMREAD(field uint32) (uint64, error)
	VMWRITE(field uint32, value uint64) error

	// VMLAUNCH enters the guest. On success the guest resumes at the
	// instruction after the call with the caller's own register state, so
	// VMLAUNCH returns nil from inside the guest.
	VMLAUNCH() error

	DisableInterrupts()
	EnableInterrupts()

	// Halt disables interrupts and idles the core forever.
	Halt()
}
