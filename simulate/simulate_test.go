package simulate

import (
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hankjacobs/hypervisor"
	"github.com/hankjacobs/hypervisor/loader"
	"github.com/hankjacobs/hypervisor/x86"
)

func testConfig() hypervisor.Config {
	cfg := hypervisor.DefaultConfig()
	cfg.LogLevel = "info"
	return cfg
}

func skipUnlessAMD64(t *testing.T) {
	t.Helper()
	if runtime.GOARCH != "amd64" {
		t.Skip("VM entry needs the amd64 exit trampoline")
	}
}

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte("name: one\nsteps:\n  - exit: rdmsr\n"))
	if err != nil {
		t.Fatalf("ParseScenario: %v", err)
	}
	if s.Cores != 1 {
		t.Errorf("Cores = %d, want 1", s.Cores)
	}
	if r, _ := s.Steps[0].Reason(); r != hypervisor.ExitReasonRdmsr {
		t.Errorf("Reason = %v", r)
	}
}

func TestParseScenarioErrors(t *testing.T) {
	for _, tc := range []struct {
		name, yaml, want string
	}{
		{"unknown exit", "steps:\n  - exit: vmcall\n", `unknown exit "vmcall"`},
		{"no cores", "cores: 0\n", "cores must be positive"},
		{"bad yaml", "steps: [\n", "parse scenario"},
		{"bad vector", "steps:\n  - exit: external-interrupt\n    vector: 256\n", "parse scenario"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestLoadScenarioMissing(t *testing.T) {
	if _, err := LoadScenario("testdata/missing.yaml"); err == nil {
		t.Errorf("LoadScenario of a missing file succeeded")
	}
}

func TestProcessorsInterruptWindow(t *testing.T) {
	window := uint64(hypervisor.CpuBasedControlsInterruptWindowExiting) << 32
	for _, allow := range []bool{false, true} {
		s := &Scenario{Cores: 2, InterruptWindow: allow}
		for i, c := range s.Processors() {
			if c.ID() != i {
				t.Errorf("processor %d has id %d", i, c.ID())
			}
			if got := c.ReadMSR(x86.MSRIA32VMXProcBasedControls)&window != 0; got != allow {
				t.Errorf("InterruptWindow %v: processor allows window exiting = %v", allow, got)
			}
		}
	}
}

func TestRunInterrupts(t *testing.T) {
	skipUnlessAMD64(t)
	s, err := LoadScenario("testdata/interrupts.yaml")
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	report, err := Run(context.Background(), s, testConfig(), loader.DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if hypervisor.Loaded() {
		t.Errorf("hypervisor still loaded after Run")
	}
	if report.Scenario != "interrupts" || len(report.Cores) != 2 {
		t.Fatalf("report = %+v", report)
	}

	version := hypervisor.ParseVersion(hypervisor.Version)
	const valid = 1 << 31
	want := []StepResult{
		{Exit: "cpuid", Regs: hypervisor.GeneralPurposeRegisters{Rax: 0x16, Rbx: 0x756e6547, Rcx: 0x6c65746e, Rdx: 0x49656e69}, Rip: 2},
		{Exit: "cpuid", Regs: hypervisor.GeneralPurposeRegisters{Rax: uint64(version[0]), Rbx: uint64(version[1]), Rcx: uint64(version[2])}, Rip: 4},
		{Exit: "external-interrupt", Rip: 4, Pending: 1, Poll: true},
		{Exit: "external-interrupt", Rip: 4, Pending: 2, Poll: true},
		{Exit: "preemption-timer", Rip: 4, Inject: valid | 0x21, Pending: 1, Poll: true},
		{Exit: "preemption-timer", Rip: 4, Inject: valid | 0x30},
	}
	for _, c := range report.Cores {
		if c.Halted || c.Error != "" {
			t.Errorf("core %d: halted %v error %q", c.ID, c.Halted, c.Error)
		}
		if diff := cmp.Diff(want, c.Steps); diff != "" {
			t.Errorf("core %d steps mismatch (-want +got):\n%s", c.ID, diff)
		}
		if n := c.Exits[hypervisor.ExitReasonCpuid]; n != 2 {
			t.Errorf("core %d: %d cpuid exits, want 2", c.ID, n)
		}
	}
}

func TestRunHalt(t *testing.T) {
	skipUnlessAMD64(t)
	s, err := LoadScenario("testdata/halt.yaml")
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	report, err := Run(context.Background(), s, testConfig(), loader.DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c := report.Cores[0]
	if !c.Halted {
		t.Fatalf("core not halted: %+v", c)
	}
	if len(c.Steps) != 1 {
		t.Errorf("%d steps ran before the halt, want 1", len(c.Steps))
	}
	if n := c.Exits[hypervisor.ExitReasonCpuid]; n != 1 {
		t.Errorf("%d cpuid exits, want 1", n)
	}
	if !strings.Contains(c.Error, "step 1 (hlt)") {
		t.Errorf("Error = %q", c.Error)
	}
	if hypervisor.Loaded() {
		t.Errorf("hypervisor still loaded after Run")
	}
}

func TestRunInvalidScenario(t *testing.T) {
	if _, err := Run(context.Background(), &Scenario{Cores: 0}, testConfig(), loader.DefaultOptions()); err == nil {
		t.Errorf("Run accepted zero cores")
	}
}
