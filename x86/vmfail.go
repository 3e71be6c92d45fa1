package x86

// VMFail is the failure outcome of a VMX instruction.
type VMFail int

const (
	// VMFailValid means a current VMCS exists and its VM-instruction
	// error field holds the reason (ZF set).
	VMFailValid VMFail = iota + 1
	// VMFailInvalid means there is no current VMCS to hold a reason (CF
	// set).
	VMFailInvalid
)

func (f VMFail) Error() string {
	switch f {
	case VMFailValid:
		return "vmx: VMfailValid"
	case VMFailInvalid:
		return "vmx: VMfailInvalid"
	default:
		return "vmx: unknown failure"
	}
}

// vmStatus converts the flag-derived result of the assembly wrappers.
func vmStatus(code uint64) error {
	switch code {
	case 0:
		return nil
	case 1:
		return VMFailValid
	default:
		return VMFailInvalid
	}
}
