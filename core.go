package hypervisor

import (
	"errors"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/hankjacobs/hypervisor/x86"
)

const invalidVMCSPointer = ^uint64(0)

// CoreState is where a core is in its lifecycle.
type CoreState int

const (
	StateUnloaded CoreState = iota
	// StateRoot is VMX root operation with no guest launched.
	StateRoot
	// StateRunning means the core is a guest and VM exits are handled.
	StateRunning
	// StateHalted is terminal: a protocol violation stopped the core.
	StateHalted
)

func (s CoreState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateRoot:
		return "root"
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	}
	return fmt.Sprintf("CoreState(%d)", int(s))
}

// Core drives one logical core: enablement, the VMCS, and VM exits. All
// methods run on the core they belong to.
type Core struct {
	vcpu  *VCpu
	cpu   x86.Processor
	cfg   Config
	log   *logrus.Entry
	state CoreState
	guard *InterruptGuard

	// ripAdvanced is reset at every VM exit.
	ripAdvanced bool
	exits       map[ExitReason]uint64
}

// NewCore attaches a Core to v without touching the processor.
func NewCore(cpu x86.Processor, v *VCpu) (*Core, error) {
	if err := v.validate(); err != nil {
		return nil, err
	}
	if v.core != nil && v.core.state != StateUnloaded {
		return nil, ErrAlreadyLoaded
	}

	c := &Core{
		vcpu:  v,
		cpu:   cpu,
		cfg:   currentConfig(),
		log:   Logger().WithField("core", v.ID),
		guard: NewInterruptGuard(cpu),
		exits: make(map[ExitReason]uint64),
	}
	v.Self = v
	v.core = c
	v.InterruptController.log = c.log
	return c, nil
}

// State returns the lifecycle state.
func (c *Core) State() CoreState { return c.state }

// VCpu returns the VCpu the core was created for.
func (c *Core) VCpu() *VCpu { return c.vcpu }

// ExitCounts returns how many exits of each reason were handled.
func (c *Core) ExitCounts() map[ExitReason]uint64 {
	out := make(map[ExitReason]uint64, len(c.exits))
	for r, n := range c.exits {
		out[r] = n
	}
	return out
}

// vmFailure turns a failed VMX instruction into an error. VMfailValid is
// decoded through the VM-instruction error field.
func (c *Core) vmFailure(op string, err error) error {
	if !errors.Is(err, x86.VMFailValid) {
		return fmt.Errorf("%s: %w", op, err)
	}
	code, rerr := c.cpu.VMREAD(uint32(VmInstructionError))
	if rerr != nil {
		code = 0
	}
	return &InstructionError{Op: op, Code: code}
}

func (c *Core) vmread(f VmcsField) (uint64, error) {
	v, err := c.cpu.VMREAD(uint32(f))
	if err != nil {
		return 0, c.vmFailure("vmread "+f.String(), err)
	}
	return v, nil
}

func (c *Core) vmwrite(f VmcsField, v uint64) error {
	if err := c.cpu.VMWRITE(uint32(f), v); err != nil {
		return c.vmFailure("vmwrite "+f.String(), err)
	}
	return nil
}

// fatalf stops the core for good: it logs, dumps the VMCS and regs and
// halts. It does not return.
func (c *Core) fatalf(regs *GeneralPurposeRegisters, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.log.Errorf("PANIC: %s", msg)
	if c.state == StateRoot || c.state == StateRunning {
		c.dumpVMCS(logrus.ErrorLevel)
	}
	if regs != nil {
		c.log.Error(spew.Sdump(regs))
	}
	c.state = StateHalted
	c.vcpu.LoadedSuccessfully = false
	c.cpu.Halt()
	panic(msg)
}
