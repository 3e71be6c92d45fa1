package hypervisor

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/hankjacobs/hypervisor/x86"
	"github.com/hankjacobs/hypervisor/x86/softcpu"
)

const interruptsOn = x86.RFlagsReserved | x86.RFlagsIF

func setGuest(cpu *softcpu.CPU, rflags, interruptibility uint64) {
	cpu.Poke(uint32(GuestRFlags), rflags)
	cpu.Poke(uint32(GuestInterruptibilityInfo), interruptibility)
	cpu.Poke(uint32(VmEntryIntrInfoField), 0)
}

func externalInterrupt(t *testing.T, cpu *softcpu.CPU, ic *VirtualLocalInterruptController, vector uint8) {
	t.Helper()
	cpu.SetExitInterrupt(vector)
	if err := ic.ReceivedExternalInterrupt(cpu); err != nil {
		t.Fatalf("ReceivedExternalInterrupt(%#x): %v", vector, err)
	}
}

func injected(t *testing.T, cpu *softcpu.CPU) (uint8, bool) {
	t.Helper()
	info, _ := cpu.Field(uint32(VmEntryIntrInfoField))
	if info&InterruptInfoValid == 0 {
		return 0, false
	}
	if typ := info & InterruptInfoTypeMask; typ != InterruptTypeExternal {
		t.Errorf("injected type %#x, want external interrupt", typ)
	}
	return uint8(info & InterruptInfoVectorMask), true
}

func checkTotal(t *testing.T, ic *VirtualLocalInterruptController) {
	t.Helper()
	var sum uint64
	for v := 0; v < interruptCount; v++ {
		sum += uint64(ic.PendingFor(uint8(v)))
	}
	if sum != ic.Pending() {
		t.Fatalf("pending total %d, sum of vectors %d", ic.Pending(), sum)
	}
}

func TestExternalInterruptInterruptable(t *testing.T) {
	cpu, c := runningCore(t)
	ic := c.VCpu().InterruptController
	setGuest(cpu, interruptsOn, 0)

	externalInterrupt(t, cpu, ic, 0x31)

	if v, ok := injected(t, cpu); !ok || v != 0x31 {
		t.Errorf("injected %#x (%v), want 0x31", v, ok)
	}
	if ic.Pending() != 0 || ic.PendingFor(0x31) != 0 || ic.PollRequested() {
		t.Errorf("table changed: total %d, poll %v", ic.Pending(), ic.PollRequested())
	}
}

func TestExternalInterruptDelayed(t *testing.T) {
	for _, tc := range []struct {
		name             string
		rflags           uint64
		interruptibility uint64
	}{
		{"interrupts disabled", x86.RFlagsReserved, 0},
		{"blocked by sti", interruptsOn, InterruptibilityBlockSTI},
		{"blocked by mov ss", interruptsOn, InterruptibilityBlockMovSS},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cpu, c := runningCore(t)
			ic := c.VCpu().InterruptController
			setGuest(cpu, tc.rflags, tc.interruptibility)

			externalInterrupt(t, cpu, ic, 0x40)
			externalInterrupt(t, cpu, ic, 0x40)

			if _, ok := injected(t, cpu); ok {
				t.Errorf("injected into a non-interruptable guest")
			}
			if ic.Pending() != 2 || ic.PendingFor(0x40) != 2 {
				t.Errorf("pending %d, vector 0x40 %d, want 2 and 2", ic.Pending(), ic.PendingFor(0x40))
			}
			if !ic.PollRequested() {
				t.Errorf("no wakeup armed")
			}
			if ctl := field(t, cpu, CpuBasedVmExecControl); ctl&CpuBasedControlsInterruptWindowExiting == 0 {
				t.Errorf("interrupt window exiting not enabled: %#x", ctl)
			}
		})
	}
}

func TestInterruptWindowDrain(t *testing.T) {
	cpu, c := runningCore(t)
	ic := c.VCpu().InterruptController
	setGuest(cpu, x86.RFlagsReserved, 0)
	for _, v := range []uint8{0x50, 0x30, 0x50} {
		externalInterrupt(t, cpu, ic, v)
	}

	// Lowest vector first. Local APIC priority would deliver 0x50 first;
	// this controller deliberately serves the lowest vector.
	for i, want := range []uint8{0x30, 0x50, 0x50} {
		setGuest(cpu, interruptsOn, 0)
		before := ic.Pending()
		if err := ic.ReceivedInterruptWindowExit(cpu); err != nil {
			t.Fatalf("drain %d: %v", i, err)
		}
		if got, ok := injected(t, cpu); !ok || got != want {
			t.Errorf("drain %d injected %#x (%v), want %#x", i, got, ok, want)
		}
		if ic.Pending() != before-1 {
			t.Errorf("drain %d: total %d -> %d", i, before, ic.Pending())
		}
		checkTotal(t, ic)
	}

	if ic.PollRequested() {
		t.Errorf("poll still requested with nothing pending")
	}
	if ctl := field(t, cpu, CpuBasedVmExecControl); ctl&CpuBasedControlsInterruptWindowExiting != 0 {
		t.Errorf("interrupt window exiting still enabled: %#x", ctl)
	}
}

func TestInterruptWindowExitNotInterruptable(t *testing.T) {
	cpu, c := runningCore(t)
	ic := c.VCpu().InterruptController
	setGuest(cpu, x86.RFlagsReserved, 0)
	externalInterrupt(t, cpu, ic, 0x30)

	if err := ic.ReceivedInterruptWindowExit(cpu); !errors.Is(err, errGuestNotInterruptable) {
		t.Errorf("ReceivedInterruptWindowExit = %v, want %v", err, errGuestNotInterruptable)
	}
	if ic.Pending() != 1 {
		t.Errorf("pending = %d, want 1", ic.Pending())
	}
}

func withoutInterruptWindow(cpu *softcpu.CPU) {
	msr := cpu.ReadMSR(x86.MSRIA32VMXProcBasedControls)
	cpu.SetMSR(x86.MSRIA32VMXProcBasedControls, msr&^(uint64(CpuBasedControlsInterruptWindowExiting)<<32))
}

func TestPreemptionTimerFallback(t *testing.T) {
	cpu, c := runningCore(t)
	withoutInterruptWindow(cpu)
	ic := c.VCpu().InterruptController

	// The default controls already run the preemption timer, so the
	// controller must leave it on when it is done.
	pin := field(t, cpu, PinBasedVmExecControl)
	if pin&PinBasedControlsVmxPreemption == 0 {
		t.Fatalf("default pin controls %#x lack the preemption timer", pin)
	}

	setGuest(cpu, x86.RFlagsReserved, 0)
	externalInterrupt(t, cpu, ic, 0x22)
	if ctl := field(t, cpu, CpuBasedVmExecControl); ctl&CpuBasedControlsInterruptWindowExiting != 0 {
		t.Errorf("interrupt window exiting enabled without capability")
	}
	if got := field(t, cpu, VmxPreemptionTimerValue); got != wakeupTimerValue {
		t.Errorf("timer = %#x, want %#x", got, wakeupTimerValue)
	}
	if !ic.PollRequested() {
		t.Fatalf("no poll requested")
	}

	setGuest(cpu, interruptsOn, 0)
	if err := ic.ReceivedPreemptionTimer(cpu); err != nil {
		t.Fatalf("ReceivedPreemptionTimer: %v", err)
	}
	if v, ok := injected(t, cpu); !ok || v != 0x22 {
		t.Errorf("injected %#x (%v), want 0x22", v, ok)
	}
	if got := field(t, cpu, PinBasedVmExecControl); got != pin {
		t.Errorf("pin controls %#x, want %#x untouched", got, pin)
	}
	if ic.PollRequested() || ic.Pending() != 0 {
		t.Errorf("poll %v pending %d after drain", ic.PollRequested(), ic.Pending())
	}
	if got, want := field(t, cpu, VmxPreemptionTimerValue), uint64(testConfig().PreemptionTimerValue); got != want {
		t.Errorf("timer = %#x after drain, want configured %#x", got, want)
	}
}

// The preemption timer runs under the default controls, so it can drain a
// queue whose wakeup was an interrupt window.
func TestPreemptionTimerDrainsWindowWakeup(t *testing.T) {
	cpu, c := runningCore(t)
	ic := c.VCpu().InterruptController
	timer := field(t, cpu, VmxPreemptionTimerValue)

	setGuest(cpu, x86.RFlagsReserved, 0)
	externalInterrupt(t, cpu, ic, 0x30)
	if ctl := field(t, cpu, CpuBasedVmExecControl); ctl&CpuBasedControlsInterruptWindowExiting == 0 {
		t.Fatalf("interrupt window exiting not enabled: %#x", ctl)
	}

	setGuest(cpu, interruptsOn, 0)
	if err := ic.ReceivedPreemptionTimer(cpu); err != nil {
		t.Fatalf("ReceivedPreemptionTimer: %v", err)
	}
	if v, ok := injected(t, cpu); !ok || v != 0x30 {
		t.Errorf("injected %#x (%v), want 0x30", v, ok)
	}
	if ic.Pending() != 0 || ic.PollRequested() {
		t.Errorf("pending %d poll %v after drain", ic.Pending(), ic.PollRequested())
	}
	if ctl := field(t, cpu, CpuBasedVmExecControl); ctl&CpuBasedControlsInterruptWindowExiting != 0 {
		t.Errorf("interrupt window exiting still enabled: %#x", ctl)
	}
	if got := field(t, cpu, VmxPreemptionTimerValue); got != timer {
		t.Errorf("timer = %#x, want %#x untouched", got, timer)
	}
}

func TestPreemptionTimerRearm(t *testing.T) {
	cpu, c := runningCore(t)
	withoutInterruptWindow(cpu)
	ic := c.VCpu().InterruptController
	timer := field(t, cpu, VmxPreemptionTimerValue)

	for round := 0; round < 2; round++ {
		setGuest(cpu, x86.RFlagsReserved, 0)
		externalInterrupt(t, cpu, ic, 0x22)
		externalInterrupt(t, cpu, ic, 0x23)
		if got := field(t, cpu, VmxPreemptionTimerValue); got != wakeupTimerValue {
			t.Fatalf("round %d: timer = %#x, want %#x", round, got, wakeupTimerValue)
		}
		setGuest(cpu, interruptsOn, 0)
		for i := 0; i < 2; i++ {
			if err := ic.ReceivedPreemptionTimer(cpu); err != nil {
				t.Fatalf("round %d: ReceivedPreemptionTimer: %v", round, err)
			}
		}
		if got := field(t, cpu, VmxPreemptionTimerValue); got != timer {
			t.Errorf("round %d: timer = %#x after drain, want %#x", round, got, timer)
		}
	}
}

func TestInterruptControllerLogsCore(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.LogLevel = "trace"
	cfg.Output = &buf

	cpu := softcpu.New(5)
	load(t, cpu, cfg)
	c, err := CoreLoad(cpu, newTestVCpu(t, cpu))
	if err != nil {
		t.Fatalf("CoreLoad: %v", err)
	}
	setGuest(cpu, x86.RFlagsReserved, 0)
	externalInterrupt(t, cpu, c.VCpu().InterruptController, 0x30)

	var found bool
	for _, line := range strings.Split(buf.String(), "\n") {
		if !strings.Contains(line, "delay delivery") {
			continue
		}
		found = true
		if !strings.Contains(line, "core=5") {
			t.Errorf("line without core field: %q", line)
		}
	}
	if !found {
		t.Errorf("no delay message logged:\n%s", buf.String())
	}
}

func TestPreemptionTimerEnabledByController(t *testing.T) {
	cpu, c := runningCore(t)
	withoutInterruptWindow(cpu)
	ic := c.VCpu().InterruptController
	pin := field(t, cpu, PinBasedVmExecControl) &^ PinBasedControlsVmxPreemption
	cpu.Poke(uint32(PinBasedVmExecControl), pin)

	setGuest(cpu, x86.RFlagsReserved, 0)
	externalInterrupt(t, cpu, ic, 0x22)
	externalInterrupt(t, cpu, ic, 0x23)
	if got := field(t, cpu, PinBasedVmExecControl); got&PinBasedControlsVmxPreemption == 0 {
		t.Fatalf("preemption timer not enabled: %#x", got)
	}

	setGuest(cpu, interruptsOn, 0)
	if err := ic.ReceivedPreemptionTimer(cpu); err != nil {
		t.Fatalf("ReceivedPreemptionTimer: %v", err)
	}
	if got := field(t, cpu, PinBasedVmExecControl); got&PinBasedControlsVmxPreemption == 0 {
		t.Errorf("preemption timer disabled with an interrupt still pending")
	}
	if err := ic.ReceivedPreemptionTimer(cpu); err != nil {
		t.Fatalf("ReceivedPreemptionTimer: %v", err)
	}
	if got := field(t, cpu, PinBasedVmExecControl); got != pin {
		t.Errorf("pin controls %#x, want %#x", got, pin)
	}
}

func TestPreemptionTimerWithoutPoll(t *testing.T) {
	cpu, c := runningCore(t)
	ic := c.VCpu().InterruptController
	setGuest(cpu, interruptsOn, 0)

	if err := ic.ReceivedPreemptionTimer(cpu); err != nil {
		t.Fatalf("ReceivedPreemptionTimer: %v", err)
	}
	if _, ok := injected(t, cpu); ok {
		t.Errorf("injected without a pending interrupt")
	}
}

func TestPreemptionTimerGuestStillBlocked(t *testing.T) {
	cpu, c := runningCore(t)
	withoutInterruptWindow(cpu)
	ic := c.VCpu().InterruptController
	setGuest(cpu, x86.RFlagsReserved, 0)
	externalInterrupt(t, cpu, ic, 0x22)

	setGuest(cpu, interruptsOn, InterruptibilityBlockSTI)
	if err := ic.ReceivedPreemptionTimer(cpu); err != nil {
		t.Fatalf("ReceivedPreemptionTimer: %v", err)
	}
	if _, ok := injected(t, cpu); ok {
		t.Errorf("injected while blocked by sti")
	}
	if ic.Pending() != 1 || !ic.PollRequested() {
		t.Errorf("pending %d poll %v, want 1 and true", ic.Pending(), ic.PollRequested())
	}
}

func TestInterruptControllerTotalInvariant(t *testing.T) {
	cpu, c := runningCore(t)
	withoutInterruptWindow(cpu)
	ic := c.VCpu().InterruptController
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 2000; i++ {
		interruptable := rng.Intn(2) == 0
		rflags := uint64(x86.RFlagsReserved)
		if interruptable {
			rflags = interruptsOn
		}
		setGuest(cpu, rflags, 0)

		before := ic.Pending()
		switch rng.Intn(3) {
		case 0:
			vector := uint8(rng.Intn(interruptCount))
			prev := ic.PendingFor(vector)
			externalInterrupt(t, cpu, ic, vector)
			switch {
			case interruptable && ic.Pending() != before:
				t.Fatalf("step %d: interruptable guest changed total %d -> %d", i, before, ic.Pending())
			case !interruptable && (ic.Pending() != before+1 || ic.PendingFor(vector) != prev+1):
				t.Fatalf("step %d: queued vector %#x: total %d -> %d, count %d -> %d",
					i, vector, before, ic.Pending(), prev, ic.PendingFor(vector))
			}
		default:
			lowest := -1
			for v := 0; v < interruptCount; v++ {
				if ic.PendingFor(uint8(v)) > 0 {
					lowest = v
					break
				}
			}
			poll := ic.PollRequested()
			if err := ic.ReceivedPreemptionTimer(cpu); err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
			if poll && interruptable && before > 0 {
				if ic.Pending() != before-1 {
					t.Fatalf("step %d: drain changed total %d -> %d", i, before, ic.Pending())
				}
				if got, _ := injected(t, cpu); int(got) != lowest {
					t.Fatalf("step %d: drained %#x, want lowest %#x", i, got, lowest)
				}
			}
		}
		checkTotal(t, ic)
		if ic.Pending() == 0 && ic.PollRequested() {
			t.Fatalf("step %d: poll requested with nothing pending", i)
		}
	}
}
