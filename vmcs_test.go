package hypervisor

import (
	"errors"
	"testing"

	"github.com/hankjacobs/hypervisor/x86"
	"github.com/hankjacobs/hypervisor/x86/softcpu"
)

func TestAdjustControls(t *testing.T) {
	for _, tc := range []struct {
		name                     string
		requested, fixed0, fixed1 uint32
		want                     uint32
	}{
		{"zero", 0, 0, 0, 0},
		{"allowed", 0x5, 0xff, 0, 0x5},
		{"dropped", 0x105, 0xff, 0, 0x5},
		{"forced", 0x1, 0xff, 0x16, 0x17},
		{"forced and dropped", 0x80000001, 0x7f, 0x16, 0x17},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := AdjustControls(tc.requested, tc.fixed0, tc.fixed1); got != tc.want {
				t.Errorf("AdjustControls(%#x, %#x, %#x) = %#x, want %#x", tc.requested, tc.fixed0, tc.fixed1, got, tc.want)
			}
		})
	}
}

func TestAdjustControlsFormula(t *testing.T) {
	values := []uint32{0, 1, 0x16, 0x7f, 0x8000_0000, 0xdead_beef, 0xffff_ffff}
	for _, requested := range values {
		for _, fixed0 := range values {
			for _, fixed1 := range values {
				got := AdjustControls(requested, fixed0, fixed1)
				if want := fixed1 | (requested & fixed0); got != want {
					t.Fatalf("AdjustControls(%#x, %#x, %#x) = %#x, want %#x", requested, fixed0, fixed1, got, want)
				}
				if got&fixed1 != fixed1 {
					t.Fatalf("AdjustControls(%#x, %#x, %#x) = %#x lost required bits", requested, fixed0, fixed1, got)
				}
			}
		}
	}
}

func launch(t *testing.T, cpu *softcpu.CPU, v *VCpu) (*Core, error) {
	t.Helper()
	load(t, cpu, testConfig())
	return CoreLoad(cpu, v)
}

func TestLoadVM(t *testing.T) {
	cpu := softcpu.New(0)
	v := newTestVCpu(t, cpu)
	c, err := launch(t, cpu, v)
	if err != nil {
		t.Fatalf("CoreLoad: %v", err)
	}

	if !v.LoadedSuccessfully {
		t.Errorf("LoadedSuccessfully not set")
	}
	if got := cpu.CurrentVMCS(); got != v.VMCSRegion.Phys {
		t.Errorf("current vmcs = %#x, want %#x", got, v.VMCSRegion.Phys)
	}
	if !cpu.Launched(v.VMCSRegion.Phys) {
		t.Errorf("vmcs not launched")
	}
	if v.Self != v || v.Core() != c {
		t.Errorf("vcpu not wired to its core")
	}

	for _, tc := range []struct {
		field VmcsField
		want  uint64
	}{
		{HostCr0, cpu.ReadCR0()},
		{HostCr3, cpu.ReadCR3()},
		{HostCr4, cpu.ReadCR4()},
		{HostCsSelector, 0x10},
		{HostSsSelector, 0x18},
		{HostTrSelector, 0x40},
		{HostTrBase, 0xfffffe00_00003000},
		{HostGdtrBase, v.HostGDTBase},
		{HostIdtrBase, hostIDTBase()},
		{HostFsBase, v.addr()},
		{HostGsBase, cpu.ReadMSR(x86.MSRIA32GSBase)},
		{HostRsp, uint64(v.StackTop)},
		{HostRip, uint64(hostEntrypointAddr())},
		{HostIA32SysenterCs, 0x10},
		{GuestCr0, cpu.ReadCR0()},
		{GuestCr3, cpu.ReadCR3()},
		{GuestCr4, cpu.ReadCR4()},
		{Cr0ReadShadow, cpu.ReadCR0()},
		{Cr4ReadShadow, cpu.ReadCR4()},
		{GuestDr7, 0x400},
		{GuestCsSelector, 0x10},
		{GuestCsLimit, 0xffffffff},
		{GuestCsArBytes, 0xa09b},
		{GuestDsArBytes, 0xc093},
		{GuestFsArBytes, SegmentUnusable},
		{GuestFsBase, cpu.ReadMSR(x86.MSRIA32FSBase)},
		{GuestLdtrArBytes, SegmentUnusable},
		{GuestTrSelector, 0x40},
		{GuestTrBase, 0xfffffe00_00003000},
		{GuestTrLimit, 0x67},
		{GuestTrArBytes, 0x8b},
		{GuestGdtrBase, v.HostGDTBase},
		{GuestGdtrLimit, v.HostGDTLimit},
		{VmcsLinkPointer, ^uint64(0)},
		{MsrBitmap, v.MSRBitmap},
		{VmxPreemptionTimerValue, 0xfffff},
		{ExceptionBitmap, 0},
	} {
		if got := field(t, cpu, tc.field); got != tc.want {
			t.Errorf("%v = %#x, want %#x", tc.field, got, tc.want)
		}
	}
}

func TestLoadVMControls(t *testing.T) {
	cpu := softcpu.New(0)
	if _, err := launch(t, cpu, newTestVCpu(t, cpu)); err != nil {
		t.Fatalf("CoreLoad: %v", err)
	}

	ctl := DefaultControls()
	for _, tc := range []struct {
		field VmcsField
		msr   uint32
		req   uint32
	}{
		{PinBasedVmExecControl, x86.MSRIA32VMXPinBasedControls, ctl.PinBased},
		{CpuBasedVmExecControl, x86.MSRIA32VMXProcBasedControls, ctl.Primary},
		{SecondaryVmExecControl, x86.MSRIA32VMXProcBasedControls2, ctl.Secondary},
		{VmExitControls, x86.MSRIA32VMXExitControls, ctl.Exit},
		{VmEntryControls, x86.MSRIA32VMXEntryControls, ctl.Entry},
	} {
		fixed0, fixed1 := x86.Split(cpu.ReadMSR(tc.msr))
		if got, want := field(t, cpu, tc.field), uint64(AdjustControls(tc.req, fixed0, fixed1)); got != want {
			t.Errorf("%v = %#x, want %#x", tc.field, got, want)
		}
	}
}

func TestLoadVMWithoutMSRBitmap(t *testing.T) {
	cpu := softcpu.New(0)
	v := newTestVCpu(t, cpu)
	v.MSRBitmap = 0
	if _, err := launch(t, cpu, v); err != nil {
		t.Fatalf("CoreLoad: %v", err)
	}
	if got := field(t, cpu, CpuBasedVmExecControl); got&CpuBasedControlsMsrBitmaps != 0 {
		t.Errorf("primary controls %#x use msr bitmaps without a bitmap", got)
	}
	if _, ok := cpu.Field(uint32(MsrBitmap)); ok {
		t.Errorf("msr bitmap address written")
	}
}

func TestLoadVMGuestTRFallback(t *testing.T) {
	cpu := softcpu.New(0)
	sel := cpu.Selectors()
	sel.TR = 0
	cpu.SetSelectors(sel)
	v := newTestVCpu(t, cpu)
	v.TRSelector = 0x40
	v.TRBase = 0xfffffe00_00009000

	if _, err := launch(t, cpu, v); err != nil {
		t.Fatalf("CoreLoad: %v", err)
	}
	for _, tc := range []struct {
		field VmcsField
		want  uint64
	}{
		{GuestTrSelector, 0x40},
		{GuestTrBase, 0xfffffe00_00009000},
		{GuestTrLimit, 0x67},
		{GuestTrArBytes, 0x8b},
		{HostTrSelector, 0x40},
		{HostTrBase, 0xfffffe00_00009000},
	} {
		if got := field(t, cpu, tc.field); got != tc.want {
			t.Errorf("%v = %#x, want %#x", tc.field, got, tc.want)
		}
	}
}

func TestLoadVMHostSelectorsClearRPL(t *testing.T) {
	cpu := softcpu.New(0)
	cpu.SetSelectors(x86.Selectors{CS: 0x10, DS: 0x2b, ES: 0x2b, SS: 0x18, TR: 0x40})
	if _, err := launch(t, cpu, newTestVCpu(t, cpu)); err != nil {
		t.Fatalf("CoreLoad: %v", err)
	}
	if got := field(t, cpu, HostDsSelector); got != 0x28 {
		t.Errorf("host ds = %#x, want 0x28", got)
	}
	if got := field(t, cpu, GuestDsSelector); got != 0x2b {
		t.Errorf("guest ds = %#x, want 0x2b", got)
	}
}

func TestLoadVMFailures(t *testing.T) {
	for _, tc := range []struct {
		name   string
		op     softcpu.Op
		inject x86.VMFail
		code   uint64
		want   x86.VMFail
	}{
		{"vmlaunch invalid controls", softcpu.OpVMLAUNCH, x86.VMFailValid, 7, x86.VMFailValid},
		{"vmlaunch invalid host state", softcpu.OpVMLAUNCH, x86.VMFailValid, 8, x86.VMFailValid},
		{"vmlaunch without vmcs", softcpu.OpVMLAUNCH, x86.VMFailInvalid, 0, x86.VMFailInvalid},
		// No current VMCS yet, so there is nowhere to put the error number.
		{"vmptrld bad revision", softcpu.OpVMPTRLD, x86.VMFailValid, 11, x86.VMFailInvalid},
		{"vmclear invalid", softcpu.OpVMCLEAR, x86.VMFailInvalid, 0, x86.VMFailInvalid},
		{"vmwrite unsupported field", softcpu.OpVMWRITE, x86.VMFailValid, 12, x86.VMFailValid},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cpu := softcpu.New(0)
			v := newTestVCpu(t, cpu)
			cpu.InjectFailure(tc.op, tc.inject, tc.code)

			c, err := launch(t, cpu, v)
			if c != nil {
				t.Errorf("CoreLoad returned a core on failure")
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("CoreLoad = %v, want %v", err, tc.want)
			}
			var ie *InstructionError
			if tc.want == x86.VMFailValid {
				if !errors.As(err, &ie) {
					t.Fatalf("CoreLoad = %v, want *InstructionError", err)
				}
				if ie.Code != tc.code {
					t.Errorf("instruction error = %d, want %d", ie.Code, tc.code)
				}
			} else if errors.As(err, &ie) {
				t.Errorf("VMfailInvalid decoded as instruction error %v", ie)
			}

			if cpu.InVMXOperation() {
				t.Errorf("left in vmx operation after failed load")
			}
			if v.LoadedSuccessfully {
				t.Errorf("LoadedSuccessfully set after failed load")
			}
		})
	}
}

func TestLoadVMEntryChecks(t *testing.T) {
	cpu := softcpu.New(0)
	v := newTestVCpu(t, cpu)
	load(t, cpu, testConfig())
	c, err := NewCore(cpu, v)
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	if err := c.Enable(v.VMXONRegion); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	// Require CR0.CD, which the host does not have.
	cpu.SetMSR(x86.MSRIA32VMXCR0Fixed0, 0x80000021|1<<30)

	err = c.LoadVM()
	var ie *InstructionError
	if !errors.As(err, &ie) || ie.Code != 8 {
		t.Fatalf("LoadVM = %v, want instruction error 8", err)
	}
	if got := InstructionErrorMessage(ie.Code); got != "VM entry with invalid host-state field(s)" {
		t.Errorf("message = %q", got)
	}
	if c.State() != StateRoot {
		t.Errorf("state = %v, want root", c.State())
	}
	if v.LoadedSuccessfully {
		t.Errorf("LoadedSuccessfully set")
	}
}
