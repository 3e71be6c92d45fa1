package hypervisor

import (
	"github.com/hankjacobs/hypervisor/hypercall"
	"github.com/hankjacobs/hypervisor/x86"
)

// Control-register access qualification (SDM vol. 3C table 28-3).
const (
	crQualRegisterMask = 0xf
	crQualAccessShift  = 4
	crQualAccessMask   = 0x3
	crQualGPRShift     = 8
	crQualGPRMask      = 0xf

	crAccessMoveTo   = 0
	crAccessMoveFrom = 1
	crAccessCLTS     = 2
	crAccessLMSW     = 3
)

var crFields = map[uint64]VmcsField{
	0: GuestCr0,
	3: GuestCr3,
	4: GuestCr4,
}

// HandleExit services the VM exit the processor just took. regs is the
// guest register file saved by the entry point; handlers update it in
// place. On return the caller resumes the guest.
//
// Exits that have no handler, and handler failures, halt the core.
func (c *Core) HandleExit(regs *GeneralPurposeRegisters) {
	if c.state != StateRunning {
		c.fatalf(regs, "vm exit on core in state %v", c.state)
	}
	c.ripAdvanced = false

	raw, err := c.vmread(VmExitReason)
	if err != nil {
		c.fatalf(regs, "reading exit reason: %v", err)
	}
	info := DecodeExitReason(raw)
	if info.EntryFailure {
		c.fatalf(regs, "vm entry failed with reason %v (%#x)", info.Reason, raw)
	}
	c.exits[info.Reason]++
	c.log.Tracef("Handling vm exit %v", info.Reason)

	ic := c.vcpu.InterruptController
	switch info.Reason {
	case ExitReasonCpuid:
		err = c.handleCPUID(regs)
	case ExitReasonControlRegisterAccess:
		err = c.handleCRAccess(regs)
	case ExitReasonExternalInterrupt:
		err = ic.ReceivedExternalInterrupt(c.cpu)
	case ExitReasonPreemptionTimerExpired:
		err = ic.ReceivedPreemptionTimer(c.cpu)
	case ExitReasonInterruptWindow:
		err = ic.ReceivedInterruptWindowExit(c.cpu)
	default:
		qual, _ := c.cpu.VMREAD(uint32(ExitQualification))
		c.fatalf(regs, "Unhandled vm exit reason %#x (%v) qualification %#x", uint16(info.Reason), info.Reason, qual)
	}
	if err != nil {
		c.fatalf(regs, "handling %v: %v", info.Reason, err)
	}
}

// advanceGuestRIP moves the guest past the instruction that caused the
// exit. It may run once per exit.
func (c *Core) advanceGuestRIP() error {
	if c.ripAdvanced {
		c.fatalf(nil, "guest rip advanced twice for one exit")
	}
	rip, err := c.vmread(GuestRip)
	if err != nil {
		return err
	}
	n, err := c.vmread(VmExitInstructionLen)
	if err != nil {
		return err
	}
	if err := c.vmwrite(GuestRip, rip+n); err != nil {
		return err
	}
	c.ripAdvanced = true
	return nil
}

func (c *Core) handleCPUID(regs *GeneralPurposeRegisters) error {
	if err := c.advanceGuestRIP(); err != nil {
		return err
	}
	if uint32(regs.Rax) == hypercall.Magic {
		c.handleHypercall(regs)
		return nil
	}

	leaf, subleaf := uint32(regs.Rax), uint32(regs.Rcx)
	r := c.cpu.CPUID(leaf, subleaf)
	if leaf == x86.CPUIDLeafFeatureInfo {
		r.Ecx &^= x86.CPUIDFeatureECXVMX
	}
	regs.Rax = uint64(r.Eax)
	regs.Rbx = uint64(r.Ebx)
	regs.Rcx = uint64(r.Ecx)
	regs.Rdx = uint64(r.Edx)
	return nil
}

func (c *Core) handleCRAccess(regs *GeneralPurposeRegisters) error {
	qual, err := c.vmread(ExitQualification)
	if err != nil {
		return err
	}
	cr := qual & crQualRegisterMask
	access := (qual >> crQualAccessShift) & crQualAccessMask
	gpr := (qual >> crQualGPRShift) & crQualGPRMask

	field, ok := crFields[cr]
	if !ok {
		c.fatalf(regs, "cr access to unsupported cr%d (qualification %#x)", cr, qual)
	}

	switch access {
	case crAccessMoveTo:
		value, err := c.readGPR(regs, gpr)
		if err != nil {
			return err
		}
		c.log.Tracef("mov to cr%d: %#x", cr, value)
		if err := c.vmwrite(field, value); err != nil {
			return err
		}
	case crAccessMoveFrom:
		value, err := c.vmread(field)
		if err != nil {
			return err
		}
		c.log.Tracef("mov from cr%d: %#x", cr, value)
		if err := c.writeGPR(regs, gpr, value); err != nil {
			return err
		}
	case crAccessCLTS:
		c.fatalf(regs, "clts is not implemented")
	case crAccessLMSW:
		c.fatalf(regs, "lmsw is not implemented")
	}
	return c.advanceGuestRIP()
}

// readGPR reads the register numbered i. RSP comes from the VMCS.
func (c *Core) readGPR(regs *GeneralPurposeRegisters, i uint64) (uint64, error) {
	if r := regs.ByModRMIndex(i); r != nil {
		return *r, nil
	}
	return c.vmread(GuestRsp)
}

func (c *Core) writeGPR(regs *GeneralPurposeRegisters, i uint64, value uint64) error {
	if r := regs.ByModRMIndex(i); r != nil {
		*r = value
		return nil
	}
	return c.vmwrite(GuestRsp, value)
}

// dispatchExit is called by hostEntrypoint on the host stack with the
// VCpu found through FS:0 and the registers it saved.
//
//go:nosplit
func dispatchExit(v *VCpu, regs *GeneralPurposeRegisters) {
	v.core.HandleExit(regs)
}

// resumeFailure is called by hostEntrypoint when VMRESUME fails.
//
//go:nosplit
func resumeFailure(v *VCpu, status uint64) {
	var err error = x86.VMFailInvalid
	if status == 1 {
		err = x86.VMFailValid
	}
	c := v.core
	c.fatalf(nil, "vmresume: %v", c.vmFailure("vmresume", err))
}
