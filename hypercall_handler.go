package hypervisor

import "github.com/hankjacobs/hypervisor/hypercall"

// handleHypercall answers a CPUID issued with hypercall.Magic in RAX. The
// reason is taken from RCX. Undefined reasons get all zeros.
func (c *Core) handleHypercall(regs *GeneralPurposeRegisters) {
	reason := hypercall.Reason(regs.Rcx)
	c.log.Tracef("Hypercall %v", reason)

	var out [4]uint32
	switch reason {
	case hypercall.ReasonVersion:
		v := ParseVersion(Version)
		out = [4]uint32{v[0], v[1], v[2], 0}
	}
	regs.Rax = uint64(out[0])
	regs.Rbx = uint64(out[1])
	regs.Rcx = uint64(out[2])
	regs.Rdx = uint64(out[3])
}
