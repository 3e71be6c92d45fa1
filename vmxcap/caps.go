// Package vmxcap reads the VMX capability MSRs and previews how the
// hypervisor's requested controls would be adjusted against them.
package vmxcap

import (
	"errors"
	"fmt"

	"github.com/hankjacobs/hypervisor"
	"github.com/hankjacobs/hypervisor/x86"
)

// ErrUnavailable means the source could not supply the MSR.
var ErrUnavailable = errors.New("vmxcap: msr unavailable")

// Reader reads one model-specific register.
type Reader interface {
	ReadMSR(msr uint32) (uint64, error)
}

type processorReader struct {
	cpu x86.Processor
}

func (p processorReader) ReadMSR(msr uint32) (uint64, error) {
	return p.cpu.ReadMSR(msr), nil
}

// FromProcessor reads MSRs straight from cpu.
func FromProcessor(cpu x86.Processor) Reader {
	return processorReader{cpu: cpu}
}

// Capabilities holds the raw VMX capability MSRs.
type Capabilities struct {
	Basic      uint64 `yaml:"basic"`
	PinBased   uint64 `yaml:"pinBased"`
	ProcBased  uint64 `yaml:"procBased"`
	ProcBased2 uint64 `yaml:"procBased2"`
	Exit       uint64 `yaml:"exit"`
	Entry      uint64 `yaml:"entry"`
	Misc       uint64 `yaml:"misc"`
	CR0Fixed0  uint64 `yaml:"cr0Fixed0"`
	CR0Fixed1  uint64 `yaml:"cr0Fixed1"`
	CR4Fixed0  uint64 `yaml:"cr4Fixed0"`
	CR4Fixed1  uint64 `yaml:"cr4Fixed1"`
}

// Read collects the capability MSRs from r. The secondary controls MSR
// is only read if the primary controls allow enabling it.
func Read(r Reader) (Capabilities, error) {
	var c Capabilities
	for _, m := range []struct {
		msr uint32
		dst *uint64
	}{
		{x86.MSRIA32VMXBasic, &c.Basic},
		{x86.MSRIA32VMXPinBasedControls, &c.PinBased},
		{x86.MSRIA32VMXProcBasedControls, &c.ProcBased},
		{x86.MSRIA32VMXExitControls, &c.Exit},
		{x86.MSRIA32VMXEntryControls, &c.Entry},
		{x86.MSRIA32VMXMisc, &c.Misc},
		{x86.MSRIA32VMXCR0Fixed0, &c.CR0Fixed0},
		{x86.MSRIA32VMXCR0Fixed1, &c.CR0Fixed1},
		{x86.MSRIA32VMXCR4Fixed0, &c.CR4Fixed0},
		{x86.MSRIA32VMXCR4Fixed1, &c.CR4Fixed1},
	} {
		v, err := r.ReadMSR(m.msr)
		if err != nil {
			return c, err
		}
		*m.dst = v
	}

	if allowed1, _ := x86.Split(c.ProcBased); allowed1&hypervisor.CpuBasedControlsSecondaryEnable != 0 {
		v, err := r.ReadMSR(x86.MSRIA32VMXProcBasedControls2)
		if err != nil {
			return c, err
		}
		c.ProcBased2 = v
	}
	return c, nil
}

// RevisionID is the VMCS revision identifier.
func (c Capabilities) RevisionID() uint32 { return uint32(c.Basic) & 0x7fffffff }

// RegionSize is the VMXON and VMCS region size in bytes.
func (c Capabilities) RegionSize() int { return int(c.Basic>>32) & 0x1fff }

// TrueControls reports whether the IA32_VMX_TRUE_*_CTLS MSRs exist.
func (c Capabilities) TrueControls() bool { return c.Basic&(1<<55) != 0 }

// PreemptionTimerRate is the preemption timer tick as a power of two of the
// TSC rate.
func (c Capabilities) PreemptionTimerRate() uint { return uint(c.Misc & 0x1f) }

// Adjustment is the outcome of fitting one control set to its MSR.
type Adjustment struct {
	Name      string `yaml:"name"`
	Requested uint32 `yaml:"requested"`
	Result    uint32 `yaml:"result"`
	// Dropped are requested bits the processor does not allow.
	Dropped uint32 `yaml:"dropped"`
	// Forced are bits the processor requires that were not requested.
	Forced uint32 `yaml:"forced"`
}

func (a Adjustment) String() string {
	return fmt.Sprintf("%-10s requested %#08x result %#08x dropped %#08x forced %#08x",
		a.Name, a.Requested, a.Result, a.Dropped, a.Forced)
}

func adjust(name string, requested uint32, msr uint64) Adjustment {
	fixed0, fixed1 := x86.Split(msr)
	return Adjustment{
		Name:      name,
		Requested: requested,
		Result:    hypervisor.AdjustControls(requested, fixed0, fixed1),
		Dropped:   requested &^ fixed0,
		Forced:    fixed1 &^ requested,
	}
}

// Negotiate adjusts ctl the way the hypervisor does when it builds a VMCS.
func (c Capabilities) Negotiate(ctl hypervisor.Controls) []Adjustment {
	out := []Adjustment{
		adjust("pin-based", ctl.PinBased, c.PinBased),
		adjust("primary", ctl.Primary, c.ProcBased),
		adjust("vm-exit", ctl.Exit, c.Exit),
		adjust("vm-entry", ctl.Entry, c.Entry),
	}
	if out[1].Result&hypervisor.CpuBasedControlsSecondaryEnable != 0 {
		out = append(out, adjust("secondary", ctl.Secondary, c.ProcBased2))
	}
	return out
}
