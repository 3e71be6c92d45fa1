//go:build amd64
// +build amd64

package x86

// These are assembly functions. The VMX wrappers return 0 on success,
// 1 for VMfailValid and 2 for VMfailInvalid.

func cpuid(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32)

func rdmsr(msr uint32) uint64

func wrmsr(msr uint32, value uint64)

func readCR0() uint64

func writeCR0(value uint64)

func readCR3() uint64

func readCR4() uint64

func writeCR4(value uint64)

func readDR7() uint64

func readFlags() uint64

// readSelectors stores CS, DS, ES, FS, GS, SS, TR and LDTR into s.
func readSelectors(s *Selectors)

func sgdt() (limit uint16, base uint64)

func sidt() (limit uint16, base uint64)

func vmxon(phys uint64) uint64

func vmxoff() uint64

func vmclear(phys uint64) uint64

func vmptrld(phys uint64) uint64

func vmptrst() (phys uint64, status uint64)

func vmread(field uint64) (value uint64, status uint64)

func vmwrite(field, value uint64) uint64

// vmlaunchPassthrough points GUEST_RSP at its own frame and GUEST_RIP at
// passthroughResume, then executes VMLAUNCH. When the launch succeeds the
// guest starts in passthroughResume, which returns 0 to the caller.
func vmlaunchPassthrough() uint64

// passthroughResume is never called from Go.
func passthroughResume() uint64

func cli()

func sti()

func hlt()

// CPUID executes CPUID. It is not privileged.
func CPUID(leaf, subleaf uint32) CPUIDResult {
	eax, ebx, ecx, edx := cpuid(leaf, subleaf)
	return CPUIDResult{Eax: eax, Ebx: ebx, Ecx: ecx, Edx: edx}
}

type native struct{}

// Native returns the Processor backed by the current logical core. Every
// method except CPUID requires CPL 0.
func Native() (Processor, error) {
	return native{}, nil
}

func (native) CPUID(leaf, subleaf uint32) CPUIDResult { return CPUID(leaf, subleaf) }

func (native) ReadMSR(msr uint32) uint64 { return rdmsr(msr) }

func (native) WriteMSR(msr uint32, value uint64) { wrmsr(msr, value) }

func (native) ReadCR0() uint64 { return readCR0() }

func (native) WriteCR0(value uint64) { writeCR0(value) }

func (native) ReadCR3() uint64 { return readCR3() }

func (native) ReadCR4() uint64 { return readCR4() }

func (native) WriteCR4(value uint64) { writeCR4(value) }

func (native) ReadDR7() uint64 { return readDR7() }

func (native) ReadFlags() uint64 { return readFlags() }

func (native) Selectors() Selectors {
	var s Selectors
	readSelectors(&s)
	return s
}

func (native) GDT() DescriptorTablePointer {
	limit, base := sgdt()
	return DescriptorTablePointer{Limit: limit, Base: base}
}

func (native) IDT() DescriptorTablePointer {
	limit, base := sidt()
	return DescriptorTablePointer{Limit: limit, Base: base}
}

func (native) VMXON(phys uint64) error { return vmStatus(vmxon(phys)) }

func (native) VMXOFF() error { return vmStatus(vmxoff()) }

func (native) VMCLEAR(phys uint64) error { return vmStatus(vmclear(phys)) }

func (native) VMPTRLD(phys uint64) error { return vmStatus(vmptrld(phys)) }

func (native) VMPTRST() (uint64, error) {
	phys, status := vmptrst()
	return phys, vmStatus(status)
}

//go:nosplit
func (native) VMREAD(field uint32) (uint64, error) {
	value, status := vmread(uint64(field))
	return value, vmStatus(status)
}

//go:nosplit
func (native) VMWRITE(field uint32, value uint64) error {
	return vmStatus(vmwrite(uint64(field), value))
}

func (native) VMLAUNCH() error { return vmStatus(vmlaunchPassthrough()) }

func (native) DisableInterrupts() { cli() }

func (native) EnableInterrupts() { sti() }

func (native) Halt() {
	for {
		cli()
		hlt()
	}
}
