package hypervisor

import (
	"encoding/binary"
	"fmt"

	"github.com/hankjacobs/hypervisor/x86"
)

// vmxAvailable reports whether CPUID advertises VMX.
func vmxAvailable(cpu x86.Processor) bool {
	r := cpu.CPUID(x86.CPUIDLeafFeatureInfo, 0)
	return r.Ecx&x86.CPUIDFeatureECXVMX != 0
}

// revisionIdentifier reads the VMCS revision identifier from
// IA32_VMX_BASIC. Bit 31 is always zero.
func revisionIdentifier(cpu x86.Processor) uint32 {
	return uint32(cpu.ReadMSR(x86.MSRIA32VMXBasic)) & 0x7fffffff
}

// regionSize is the VMXON/VMCS region size from IA32_VMX_BASIC[44:32].
func regionSize(cpu x86.Processor) int {
	return int(cpu.ReadMSR(x86.MSRIA32VMXBasic)>>32) & 0x1fff
}

func (c *Core) setLockBit() error {
	fc := c.cpu.ReadMSR(x86.MSRIA32FeatureControl)
	switch {
	case fc&x86.FeatureControlLocked == 0:
		c.log.Info("Setting lock bit")
		c.cpu.WriteMSR(x86.MSRIA32FeatureControl, fc|x86.FeatureControlLocked|x86.FeatureControlVMXOutsideSMX)
		return nil
	case fc&x86.FeatureControlVMXOutsideSMX == 0:
		c.log.Error("Lock bit is set but vmx is disabled. Hypervisor cannot start")
		return ErrLockedWithVMXDisabled
	}
	return nil
}

func (c *Core) setCR0Bits() {
	fixed0 := c.cpu.ReadMSR(x86.MSRIA32VMXCR0Fixed0)
	fixed1 := c.cpu.ReadMSR(x86.MSRIA32VMXCR0Fixed1)
	c.cpu.WriteCR0((c.cpu.ReadCR0() | fixed0) & fixed1)
}

func (c *Core) setCR4Bits() {
	fixed0 := c.cpu.ReadMSR(x86.MSRIA32VMXCR4Fixed0)
	fixed1 := c.cpu.ReadMSR(x86.MSRIA32VMXCR4Fixed1)
	c.cpu.WriteCR4((c.cpu.ReadCR4() | fixed0) & fixed1)
}

// prepareRegion zeroes r and stamps the revision identifier into its first
// four bytes.
func (c *Core) prepareRegion(r Region) error {
	if err := r.validate(); err != nil {
		return err
	}
	if want := regionSize(c.cpu); r.Size() < want {
		return fmt.Errorf("region %#x: size %#x below %#x", r.Virt(), r.Size(), want)
	}
	clear(r.Mem)
	binary.LittleEndian.PutUint32(r.Mem, revisionIdentifier(c.cpu))
	c.log.Tracef("Setting region identifier %#x", binary.LittleEndian.Uint32(r.Mem))
	return nil
}

// Enable puts the core into VMX root operation with r as the VMXON region.
// CR0 and CR4 may have been adjusted even if it fails; repeating that is
// harmless.
func (c *Core) Enable(r Region) error {
	if err := r.validate(); err != nil {
		c.log.WithError(err).Error("Bad VMX on region")
		return fmt.Errorf("%w: %v", ErrInvalidRegion, err)
	}

	if !vmxAvailable(c.cpu) {
		c.log.Error("VMX unavailable")
		return ErrVMXUnsupported
	}

	c.log.Trace("Setting lock bit")
	if err := c.setLockBit(); err != nil {
		return err
	}

	c.log.Trace("Setting cr0 bits")
	c.setCR0Bits()
	c.log.Trace("Setting cr4 bits")
	c.setCR4Bits()

	c.log.Trace("Preparing vmxon region")
	if err := c.prepareRegion(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRegion, err)
	}

	c.log.Trace("Doing vmxon")
	if err := c.cpu.VMXON(r.Phys); err != nil {
		c.log.WithError(err).Error("vmxon failed")
		return fmt.Errorf("%w: %w", ErrVMXONFailed, err)
	}
	c.log.Trace("vmxon succeeded")
	c.state = StateRoot
	return nil
}

// Disable leaves VMX root operation. A VMCS that is still current is a
// bug in the caller and halts the core.
func (c *Core) Disable() error {
	ptr, err := c.cpu.VMPTRST()
	if err != nil {
		return c.vmFailure("vmptrst", err)
	}
	if ptr != invalidVMCSPointer {
		c.fatalf(nil, "vmxoff with vmcs %#x still loaded", ptr)
	}
	if err := c.cpu.VMXOFF(); err != nil {
		return c.vmFailure("vmxoff", err)
	}
	c.state = StateUnloaded
	return nil
}
