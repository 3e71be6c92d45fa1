package hypervisor

import (
	"errors"
	"fmt"

	"github.com/hankjacobs/hypervisor/x86"
)

// EnablementError is why VMX root operation could not be entered.
type EnablementError int

const (
	ErrVMXUnsupported EnablementError = iota + 1
	ErrInvalidRegion
	ErrLockedWithVMXDisabled
	ErrVMXONFailed
)

func (e EnablementError) Error() string {
	switch e {
	case ErrVMXUnsupported:
		return "vmx: extensions not available"
	case ErrInvalidRegion:
		return "vmx: invalid vmxon region"
	case ErrLockedWithVMXDisabled:
		return "vmx: feature control locked with vmx disabled"
	case ErrVMXONFailed:
		return "vmx: vmxon failed"
	}
	return fmt.Sprintf("vmx: enablement error %d", int(e))
}

// Lifecycle misuse.
var (
	ErrNotLoaded     = errors.New("hypervisor: not loaded")
	ErrAlreadyLoaded = errors.New("hypervisor: already loaded")
	ErrInvalidVCpu   = errors.New("hypervisor: invalid vcpu")
	ErrCoreHalted    = errors.New("hypervisor: core halted")
)

// InstructionError is a VMfailValid outcome with the VM-instruction error
// number read back from the current VMCS.
type InstructionError struct {
	Op   string
	Code uint64
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("%s: VMfailValid: %s (%d)", e.Op, InstructionErrorMessage(e.Code), e.Code)
}

func (e *InstructionError) Unwrap() error { return x86.VMFailValid }

// InstructionErrorMessage describes a VM-instruction error number (SDM
// vol. 3C section 30.4).
func InstructionErrorMessage(n uint64) string {
	switch n {
	case 1:
		return "VMCALL executed in VMX root operation"
	case 2:
		return "VMCLEAR with invalid physical address"
	case 3:
		return "VMCLEAR with VMXON pointer"
	case 4:
		return "VMLAUNCH with non-clear VMCS"
	case 5:
		return "VMRESUME with non-launched VMCS"
	case 6:
		return "VMRESUME after VMXOFF (VMXOFF and VMXON between VMLAUNCH and VMRESUME)"
	case 7:
		return "VM entry with invalid control field(s)"
	case 8:
		return "VM entry with invalid host-state field(s)"
	case 9:
		return "VMPTRLD with invalid physical address"
	case 10:
		return "VMPTRLD with VMXON pointer"
	case 11:
		return "VMPTRLD with incorrect VMCS revision identifier"
	case 12:
		return "VMREAD/VMWRITE from/to unsupported VMCS component"
	case 13:
		return "VMWRITE to read-only VMCS component"
	case 15:
		return "VMXON executed in VMX root operation"
	case 16:
		return "VM entry with invalid executive-VMCS pointer"
	case 17:
		return "VM entry with non-launched executive VMCS"
	case 18:
		return "VM entry with executive-VMCS pointer not VMXON pointer (when attempting to deactivate the dual-monitor treatment of SMIs and SMM)"
	case 19:
		return "VMCALL with non-clear VMCS (when attempting to activate the dual-monitor treatment of SMIs and SMM)"
	case 20:
		return "VMCALL with invalid VM-exit control fields"
	case 22:
		return "VMCALL with incorrect MSEG revision identifier (when attempting to activate the dual-monitor treatment of SMIs and SMM)"
	case 23:
		return "VMXOFF under dual-monitor treatment of SMIs and SMM"
	case 24:
		return "VMCALL with invalid SMM-monitor features (when attempting to activate the dual-monitor treatment of SMIs and SMM)"
	case 25:
		return "VM entry with invalid VM-execution control fields in executive VMCS (when attempting to return from SMM)"
	case 26:
		return "VM entry with events blocked by MOV SS"
	case 28:
		return "Invalid operand to INVEPT/INVVPID"
	}
	return "Unknown VM instruction error number"
}
