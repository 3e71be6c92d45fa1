package hypervisor

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hankjacobs/hypervisor/x86"
)

const (
	interruptCount = 256

	// wakeupTimerValue is the preemption timer countdown used to poll
	// for a window to deliver queued interrupts.
	wakeupTimerValue = 0xffff
)

var errGuestNotInterruptable = errors.New("interrupt window exit with guest not interruptable")

// VirtualLocalInterruptController queues external interrupts that arrive
// while the guest cannot take them and delivers them once it can. The zero
// value is ready to use. It belongs to one core.
type VirtualLocalInterruptController struct {
	total   uint64
	pending [interruptCount]uint32

	// pollRequested means a wakeup is armed and the next preemption
	// timer or interrupt window exit should deliver.
	pollRequested bool

	// windowArmed and timerArmed record which wakeup armWakeup set up;
	// disarm undoes exactly that once the queue is empty.
	windowArmed bool
	timerArmed  bool
	// savedTimer is the preemption timer value before the wakeup
	// countdown replaced it.
	savedTimer uint64
	// shouldDisableTimer means this controller turned the preemption
	// timer on and has to turn it off again.
	shouldDisableTimer bool

	log *logrus.Entry
}

func (ic *VirtualLocalInterruptController) logger() *logrus.Entry {
	if ic.log == nil {
		return logrus.NewEntry(Logger())
	}
	return ic.log
}

// Pending returns the number of queued deliveries.
func (ic *VirtualLocalInterruptController) Pending() uint64 { return ic.total }

// PendingFor returns the number of queued deliveries of vector.
func (ic *VirtualLocalInterruptController) PendingFor(vector uint8) uint32 { return ic.pending[vector] }

// PollRequested reports whether a wakeup is armed.
func (ic *VirtualLocalInterruptController) PollRequested() bool { return ic.pollRequested }

func (ic *VirtualLocalInterruptController) delay(vector uint8) {
	ic.pending[vector]++
	ic.total++
}

// next dequeues the lowest pending vector. Vector order, not APIC
// priority order, decides.
func (ic *VirtualLocalInterruptController) next() (uint8, bool, error) {
	if ic.total == 0 {
		return 0, false, nil
	}
	for vector, count := range ic.pending {
		if count > 0 {
			ic.pending[vector]--
			ic.total--
			return uint8(vector), true, nil
		}
	}
	return 0, false, fmt.Errorf("interrupt controller: total %d with no pending vector", ic.total)
}

// guestInterruptable reports whether an external interrupt can be injected
// now (SDM vol. 3C 33.3.3.4): RFLAGS.IF set and no STI or MOV SS blocking.
func guestInterruptable(cpu x86.Processor) (bool, error) {
	rflags, err := cpu.VMREAD(uint32(GuestRFlags))
	if err != nil {
		return false, fmt.Errorf("vmread GuestRFlags: %w", err)
	}
	if rflags&x86.RFlagsIF == 0 {
		return false, nil
	}
	state, err := cpu.VMREAD(uint32(GuestInterruptibilityInfo))
	if err != nil {
		return false, fmt.Errorf("vmread GuestInterruptibilityInfo: %w", err)
	}
	return state&(InterruptibilityBlockSTI|InterruptibilityBlockMovSS) == 0, nil
}

func injectInterrupt(cpu x86.Processor, vector uint8) error {
	info := uint64(vector) | InterruptTypeExternal | InterruptInfoValid
	if err := cpu.VMWRITE(uint32(VmEntryIntrInfoField), info); err != nil {
		return fmt.Errorf("vmwrite VmEntryIntrInfoField: %w", err)
	}
	return nil
}

func setControlBits(cpu x86.Processor, f VmcsField, set, clear uint64) error {
	v, err := cpu.VMREAD(uint32(f))
	if err != nil {
		return fmt.Errorf("vmread %v: %w", f, err)
	}
	if err := cpu.VMWRITE(uint32(f), (v|set)&^clear); err != nil {
		return fmt.Errorf("vmwrite %v: %w", f, err)
	}
	return nil
}

// armWakeup asks for an exit once the guest can take interrupts: an
// interrupt window exit if the processor allows one, otherwise a
// preemption timer poll.
func (ic *VirtualLocalInterruptController) armWakeup(cpu x86.Processor) error {
	allowed1, _ := x86.Split(cpu.ReadMSR(x86.MSRIA32VMXProcBasedControls))
	if allowed1&CpuBasedControlsInterruptWindowExiting != 0 {
		ic.logger().Trace("CPU allows interrupt window exiting")
		if !ic.windowArmed {
			if err := setControlBits(cpu, CpuBasedVmExecControl, CpuBasedControlsInterruptWindowExiting, 0); err != nil {
				return err
			}
			ic.windowArmed = true
		}
		ic.pollRequested = true
		return nil
	}

	ic.logger().Trace("CPU does not allow interrupt window exiting, use a preemption timer instead")
	if !ic.timerArmed {
		pin, err := cpu.VMREAD(uint32(PinBasedVmExecControl))
		if err != nil {
			return fmt.Errorf("vmread PinBasedVmExecControl: %w", err)
		}
		if pin&PinBasedControlsVmxPreemption == 0 {
			if err := cpu.VMWRITE(uint32(PinBasedVmExecControl), pin|PinBasedControlsVmxPreemption); err != nil {
				return fmt.Errorf("vmwrite PinBasedVmExecControl: %w", err)
			}
			ic.shouldDisableTimer = true
		}
		saved, err := cpu.VMREAD(uint32(VmxPreemptionTimerValue))
		if err != nil {
			return fmt.Errorf("vmread VmxPreemptionTimerValue: %w", err)
		}
		ic.savedTimer = saved
		ic.timerArmed = true
	}
	if err := cpu.VMWRITE(uint32(VmxPreemptionTimerValue), wakeupTimerValue); err != nil {
		return fmt.Errorf("vmwrite VmxPreemptionTimerValue: %w", err)
	}
	ic.pollRequested = true
	return nil
}

// disarm tears down the wakeup armWakeup set up. It runs once nothing is
// pending, whichever exit drained the queue.
func (ic *VirtualLocalInterruptController) disarm(cpu x86.Processor) error {
	if ic.windowArmed {
		ic.logger().Trace("No more external interrupts cached, disabling interrupt window exiting")
		if err := setControlBits(cpu, CpuBasedVmExecControl, 0, CpuBasedControlsInterruptWindowExiting); err != nil {
			return err
		}
		ic.windowArmed = false
	}
	if ic.timerArmed {
		if ic.shouldDisableTimer {
			ic.logger().Trace("No more external interrupts cached, disabling preemption timer")
			if err := setControlBits(cpu, PinBasedVmExecControl, 0, PinBasedControlsVmxPreemption); err != nil {
				return err
			}
			ic.shouldDisableTimer = false
		}
		if err := cpu.VMWRITE(uint32(VmxPreemptionTimerValue), ic.savedTimer); err != nil {
			return fmt.Errorf("vmwrite VmxPreemptionTimerValue: %w", err)
		}
		ic.timerArmed = false
	}
	ic.pollRequested = false
	return nil
}

// deliver injects the lowest pending vector, if any.
func (ic *VirtualLocalInterruptController) deliver(cpu x86.Processor) error {
	vector, ok, err := ic.next()
	if err != nil || !ok {
		return err
	}
	ic.logger().Tracef("Delivering interrupt %#x into guest", vector)
	return injectInterrupt(cpu, vector)
}

// ReceivedExternalInterrupt handles an external-interrupt exit. The vector
// comes from the VM-exit interruption information, which the
// acknowledge-interrupt-on-exit control fills in.
func (ic *VirtualLocalInterruptController) ReceivedExternalInterrupt(cpu x86.Processor) error {
	info, err := cpu.VMREAD(uint32(VmExitIntrInfo))
	if err != nil {
		return fmt.Errorf("vmread VmExitIntrInfo: %w", err)
	}
	vector := uint8(info & InterruptInfoVectorMask)
	ic.logger().Tracef("Received external interrupt %#x", info)

	ok, err := guestInterruptable(cpu)
	if err != nil {
		return err
	}
	if ok {
		ic.logger().Trace("Guest is interruptable")
		return injectInterrupt(cpu, vector)
	}
	ic.logger().Trace("Guest is not interruptable, delay delivery")
	ic.delay(vector)
	return ic.armWakeup(cpu)
}

// ReceivedPreemptionTimer handles a preemption timer exit. It delivers one
// queued interrupt if a poll was requested and the guest can take it.
func (ic *VirtualLocalInterruptController) ReceivedPreemptionTimer(cpu x86.Processor) error {
	if !ic.pollRequested {
		return nil
	}
	ok, err := guestInterruptable(cpu)
	if err != nil || !ok {
		return err
	}
	if err := ic.deliver(cpu); err != nil {
		return err
	}
	if ic.total == 0 {
		return ic.disarm(cpu)
	}
	return nil
}

// ReceivedInterruptWindowExit handles an interrupt-window exit, which the
// processor only takes when the guest is interruptable.
func (ic *VirtualLocalInterruptController) ReceivedInterruptWindowExit(cpu x86.Processor) error {
	ok, err := guestInterruptable(cpu)
	if err != nil {
		return err
	}
	if !ok {
		return errGuestNotInterruptable
	}
	if err := ic.deliver(cpu); err != nil {
		return err
	}
	if ic.total == 0 {
		return ic.disarm(cpu)
	}
	return nil
}
