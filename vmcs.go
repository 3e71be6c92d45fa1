package hypervisor

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hankjacobs/hypervisor/x86"
)

// AdjustControls fits requested controls to a capability MSR: fixed0 is
// the allowed-1 half (bits 63:32), fixed1 the required-1 half (bits 31:0).
func AdjustControls(requested, fixed0, fixed1 uint32) uint32 {
	return fixed1 | (requested & fixed0)
}

// adjustControls reads msr and adjusts requested against it. Requested
// bits the processor cannot set are dropped and logged.
func (c *Core) adjustControls(name string, msr uint32, requested uint32) uint64 {
	fixed0, fixed1 := x86.Split(c.cpu.ReadMSR(msr))
	if dropped := requested &^ fixed0; dropped != 0 {
		c.log.WithFields(logrus.Fields{
			"controls":  name,
			"requested": fmt.Sprintf("%#x", requested),
			"dropped":   fmt.Sprintf("%#x", dropped),
		}).Info("Processor does not support requested controls")
	}
	return uint64(AdjustControls(requested, fixed0, fixed1))
}

type fieldWrite struct {
	field VmcsField
	value uint64
}

func (c *Core) writeAll(writes []fieldWrite) error {
	for _, w := range writes {
		if err := c.vmwrite(w.field, w.value); err != nil {
			return err
		}
	}
	return nil
}

func (c *Core) initializeControls() error {
	ctl := c.cfg.Controls
	v := c.vcpu

	pin := c.adjustControls("pin-based", x86.MSRIA32VMXPinBasedControls, ctl.PinBased)
	primary := c.adjustControls("primary", x86.MSRIA32VMXProcBasedControls, ctl.Primary)
	if primary&CpuBasedControlsMsrBitmaps != 0 && v.MSRBitmap == 0 {
		c.log.Info("No msr bitmap, disabling msr bitmaps")
		primary &^= CpuBasedControlsMsrBitmaps
	}

	writes := []fieldWrite{
		{PinBasedVmExecControl, pin},
		{VmxPreemptionTimerValue, uint64(c.cfg.PreemptionTimerValue)},
		{CpuBasedVmExecControl, primary},
		{ExceptionBitmap, 0},
		{Cr3TargetCount, 0},
		{Cr0GuestHostMask, 0},
		{Cr4GuestHostMask, 0},
		{VmExitControls, c.adjustControls("vm-exit", x86.MSRIA32VMXExitControls, ctl.Exit)},
		{VmEntryControls, c.adjustControls("vm-entry", x86.MSRIA32VMXEntryControls, ctl.Entry)},
	}
	if primary&CpuBasedControlsSecondaryEnable != 0 {
		writes = append(writes, fieldWrite{SecondaryVmExecControl,
			c.adjustControls("secondary", x86.MSRIA32VMXProcBasedControls2, ctl.Secondary)})
	}
	if primary&CpuBasedControlsMsrBitmaps != 0 {
		writes = append(writes, fieldWrite{MsrBitmap, v.MSRBitmap})
	}
	return c.writeAll(writes)
}

// hostTR is the task register the host runs with after a VM exit.
func (c *Core) hostTR(gdt []SegmentDescriptor, live uint16) (uint16, uint64) {
	if c.vcpu.TRSelector != 0 {
		return c.vcpu.TRSelector, c.vcpu.TRBase
	}
	return live, UnpackGDTEntry(gdt, live).Base
}

func (c *Core) initializeHostState() error {
	sel := c.cpu.Selectors()
	gdt := currentGDT(c.cpu)
	trSelector, trBase := c.hostTR(gdt, sel.TR)

	// Host selectors must have RPL and TI clear.
	return c.writeAll([]fieldWrite{
		{HostCr0, c.cpu.ReadCR0()},
		{HostCr3, c.cpu.ReadCR3()},
		{HostCr4, c.cpu.ReadCR4()},
		{HostCsSelector, uint64(sel.CS &^ 7)},
		{HostDsSelector, uint64(sel.DS &^ 7)},
		{HostEsSelector, uint64(sel.ES &^ 7)},
		{HostFsSelector, uint64(sel.FS &^ 7)},
		{HostGsSelector, uint64(sel.GS &^ 7)},
		{HostSsSelector, uint64(sel.SS &^ 7)},
		{HostTrSelector, uint64(trSelector &^ 7)},
		{HostTrBase, trBase},
		{HostGdtrBase, c.vcpu.HostGDTBase},
		{HostIdtrBase, hostIDTBase()},
		{HostFsBase, c.vcpu.addr()},
		{HostGsBase, c.cpu.ReadMSR(x86.MSRIA32GSBase)},
		{HostIA32SysenterCs, c.cpu.ReadMSR(x86.MSRIA32SysenterCS)},
		{HostIA32SysenterEsp, c.cpu.ReadMSR(x86.MSRIA32SysenterESP)},
		{HostIA32SysenterEip, c.cpu.ReadMSR(x86.MSRIA32SysenterEIP)},
		{HostRsp, uint64(c.vcpu.StackTop)},
		{HostRip, uint64(hostEntrypointAddr())},
	})
}

type guestSegment struct {
	selector, base, limit, ar VmcsField
}

var (
	guestEs   = guestSegment{GuestEsSelector, GuestEsBase, GuestEsLimit, GuestEsArBytes}
	guestCs   = guestSegment{GuestCsSelector, GuestCsBase, GuestCsLimit, GuestCsArBytes}
	guestSs   = guestSegment{GuestSsSelector, GuestSsBase, GuestSsLimit, GuestSsArBytes}
	guestDs   = guestSegment{GuestDsSelector, GuestDsBase, GuestDsLimit, GuestDsArBytes}
	guestFs   = guestSegment{GuestFsSelector, GuestFsBase, GuestFsLimit, GuestFsArBytes}
	guestGs   = guestSegment{GuestGsSelector, GuestGsBase, GuestGsLimit, GuestGsArBytes}
	guestLdtr = guestSegment{GuestLdtrSelector, GuestLdtrBase, GuestLdtrLimit, GuestLdtrArBytes}
	guestTr   = guestSegment{GuestTrSelector, GuestTrBase, GuestTrLimit, GuestTrArBytes}
)

func (s guestSegment) writes(u UnpackedSegment) []fieldWrite {
	return []fieldWrite{
		{s.selector, uint64(u.Selector)},
		{s.base, u.Base},
		{s.limit, uint64(u.Limit)},
		{s.ar, uint64(u.AccessRights)},
	}
}

// Access rights of a present, busy 64-bit TSS.
const busyTSSAccessRights = 0x8b

// guestTR returns the live TR, or the loader's TSS if the live one is
// unusable (firmware often runs without one).
func (c *Core) guestTR(gdt []SegmentDescriptor, live uint16) UnpackedSegment {
	tr := UnpackGDTEntry(gdt, live)
	if tr.Usable() {
		return tr
	}
	c.log.Tracef("Guest tr %#x unusable, using loader tss %#x", live, c.vcpu.TRSelector)
	return UnpackedSegment{
		Selector:     c.vcpu.TRSelector,
		Base:         c.vcpu.TRBase,
		Limit:        0x67,
		AccessRights: busyTSSAccessRights,
	}
}

func (c *Core) initializeGuestState() error {
	sel := c.cpu.Selectors()
	gdt := currentGDT(c.cpu)
	gdtr, idtr := c.cpu.GDT(), c.cpu.IDT()
	cr0, cr4 := c.cpu.ReadCR0(), c.cpu.ReadCR4()

	fs := UnpackGDTEntry(gdt, sel.FS)
	fs.Base = c.cpu.ReadMSR(x86.MSRIA32FSBase)
	gs := UnpackGDTEntry(gdt, sel.GS)
	gs.Base = c.cpu.ReadMSR(x86.MSRIA32GSBase)

	var writes []fieldWrite
	writes = append(writes, guestEs.writes(UnpackGDTEntry(gdt, sel.ES))...)
	writes = append(writes, guestCs.writes(UnpackGDTEntry(gdt, sel.CS))...)
	writes = append(writes, guestSs.writes(UnpackGDTEntry(gdt, sel.SS))...)
	writes = append(writes, guestDs.writes(UnpackGDTEntry(gdt, sel.DS))...)
	writes = append(writes, guestFs.writes(fs)...)
	writes = append(writes, guestGs.writes(gs)...)
	writes = append(writes, guestLdtr.writes(UnpackGDTEntry(gdt, sel.LDTR))...)
	writes = append(writes, guestTr.writes(c.guestTR(gdt, sel.TR))...)
	writes = append(writes, []fieldWrite{
		{GuestCr0, cr0},
		{GuestCr3, c.cpu.ReadCR3()},
		{GuestCr4, cr4},
		{Cr0ReadShadow, cr0},
		{Cr4ReadShadow, cr4},
		{GuestGdtrBase, gdtr.Base},
		{GuestGdtrLimit, uint64(gdtr.Limit)},
		{GuestIdtrBase, idtr.Base},
		{GuestIdtrLimit, uint64(idtr.Limit)},
		{GuestIA32Debugctl, c.cpu.ReadMSR(x86.MSRIA32DebugControl)},
		{GuestDr7, c.cpu.ReadDR7()},
		{GuestRFlags, c.cpu.ReadFlags()},
		{GuestSysenterCs, c.cpu.ReadMSR(x86.MSRIA32SysenterCS)},
		{GuestSysenterEsp, c.cpu.ReadMSR(x86.MSRIA32SysenterESP)},
		{GuestSysenterEip, c.cpu.ReadMSR(x86.MSRIA32SysenterEIP)},
		{VmcsLinkPointer, invalidVMCSPointer},
		{GuestInterruptibilityInfo, 0},
		{GuestActivityState, 0},
		{GuestPendingDbgExceptions, 0},
	}...)
	return c.writeAll(writes)
}

// LoadVM builds this core's VMCS from the current processor state and
// launches it. On success the caller keeps running, now as the guest.
// Must be called in VMX root operation.
func (c *Core) LoadVM() error {
	v := c.vcpu
	c.log.Tracef("Loading vm with vcpu %#x", v.addr())

	c.log.Trace("Preparing vmcs")
	if err := c.prepareRegion(v.VMCSRegion); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVCpu, err)
	}

	c.log.Trace("vmclear")
	if err := c.cpu.VMCLEAR(v.VMCSRegion.Phys); err != nil {
		return c.vmFailure("vmclear", err)
	}

	c.log.Trace("vmptrld")
	if err := c.cpu.VMPTRLD(v.VMCSRegion.Phys); err != nil {
		return c.vmFailure("vmptrld", err)
	}

	c.log.Trace("Initializing vm control values")
	if err := c.initializeControls(); err != nil {
		return err
	}
	c.log.Trace("Initializing host state")
	if err := c.initializeHostState(); err != nil {
		return err
	}
	c.log.Trace("Initializing guest state")
	if err := c.initializeGuestState(); err != nil {
		return err
	}

	if c.cfg.DumpOnLaunch {
		c.dumpVMCS(logrus.DebugLevel)
	}

	c.log.Trace("Launching...")
	if err := c.cpu.VMLAUNCH(); err != nil {
		err = c.vmFailure("vmlaunch", err)
		c.log.WithError(err).Error("vmlaunch failed")
		return err
	}

	// From here on this is the guest.
	c.state = StateRunning
	v.LoadedSuccessfully = true
	return nil
}
