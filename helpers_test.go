package hypervisor

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/hankjacobs/hypervisor/x86"
	"github.com/hankjacobs/hypervisor/x86/softcpu"
)

func mmapPage(t *testing.T, cpu *softcpu.CPU) Region {
	t.Helper()
	mem, err := unix.Mmap(-1, 0, x86.PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		t.Fatalf("mmap: %v", err)
	}
	r := Region{Mem: mem}
	r.Phys = uint64(r.Virt())
	cpu.MapPhys(r.Phys, mem)
	t.Cleanup(func() {
		cpu.UnmapPhys(r.Phys)
		unix.Munmap(mem)
	})
	return r
}

func newTestVCpu(t *testing.T, cpu *softcpu.CPU) *VCpu {
	t.Helper()
	stack := mmapPage(t, cpu)
	v := &VCpu{
		ID:                  cpu.ID(),
		VMXONRegion:         mmapPage(t, cpu),
		VMCSRegion:          mmapPage(t, cpu),
		StackBase:           stack.Virt(),
		StackSize:           uintptr(stack.Size()),
		MSRBitmap:           mmapPage(t, cpu).Phys,
		InterruptController: &VirtualLocalInterruptController{},
	}
	v.StackTop = v.StackBase + v.StackSize
	gdt := cpu.GDT()
	v.HostGDTBase, v.HostGDTLimit = gdt.Base, uint64(gdt.Limit)
	return v
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.LogLevel = "info"
	return cfg
}

// load runs the global Load for the duration of the test.
func load(t *testing.T, cpu x86.Processor, cfg Config) {
	t.Helper()
	if err := Load(cpu, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { Unload() })
}

// runningCore returns a core that has launched on a fresh soft CPU.
func runningCore(t *testing.T) (*softcpu.CPU, *Core) {
	t.Helper()
	cpu := softcpu.New(0)
	load(t, cpu, testConfig())
	c, err := CoreLoad(cpu, newTestVCpu(t, cpu))
	if err != nil {
		t.Fatalf("CoreLoad: %v", err)
	}
	if c.State() != StateRunning {
		t.Fatalf("state = %v, want running", c.State())
	}
	return cpu, c
}

// expectHalt runs f and fails unless it halts the soft CPU.
func expectHalt(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		t.Helper()
		if r := recover(); r != softcpu.Halted {
			t.Fatalf("recovered %v, want %v", r, softcpu.Halted)
		}
	}()
	f()
}

func field(t *testing.T, cpu *softcpu.CPU, f VmcsField) uint64 {
	t.Helper()
	v, ok := cpu.Field(uint32(f))
	if !ok {
		t.Fatalf("field %v not written", f)
	}
	return v
}
