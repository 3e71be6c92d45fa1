package hypervisor

// GeneralPurposeRegisters is the guest register file saved by the VM-exit
// entry point. The layout is fixed by the push order in hostEntrypoint;
// RSP lives in the VMCS instead.
type GeneralPurposeRegisters struct {
	R15, R14, R13, R12 uint64
	R11, R10, R9, R8   uint64
	Rdi, Rsi, Rbp      uint64
	Rdx, Rcx, Rbx, Rax uint64
}

// ByModRMIndex returns the register numbered i in the ModR/M encoding
// (0 = RAX ... 15 = R15). Index 4 is RSP, which has no slot here, so it and
// indices above 15 return nil.
func (r *GeneralPurposeRegisters) ByModRMIndex(i uint64) *uint64 {
	switch i {
	case 0:
		return &r.Rax
	case 1:
		return &r.Rcx
	case 2:
		return &r.Rdx
	case 3:
		return &r.Rbx
	case 5:
		return &r.Rbp
	case 6:
		return &r.Rsi
	case 7:
		return &r.Rdi
	case 8:
		return &r.R8
	case 9:
		return &r.R9
	case 10:
		return &r.R10
	case 11:
		return &r.R11
	case 12:
		return &r.R12
	case 13:
		return &r.R13
	case 14:
		return &r.R14
	case 15:
		return &r.R15
	}
	return nil
}

// InterruptFrame is what the exception stubs leave on the host stack:
// data segment selectors, the general-purpose registers, the vector and
// error code, then the frame pushed by the processor.
type InterruptFrame struct {
	Gs, Fs, Es, Ds uint64
	Registers      GeneralPurposeRegisters
	Vector         uint64
	ErrorCode      uint64
	Rip            uint64
	Cs             uint64
	Rflags         uint64
	Rsp            uint64
	Ss             uint64
}
