package simulate

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hankjacobs/hypervisor"
	"github.com/hankjacobs/hypervisor/loader"
	"github.com/hankjacobs/hypervisor/x86"
	"github.com/hankjacobs/hypervisor/x86/softcpu"
)

// ErrHalted is returned for a core the hypervisor halted.
var ErrHalted = errors.New("simulate: core halted")

// StepResult is the guest-visible outcome of one step.
type StepResult struct {
	Exit    string                             `yaml:"exit"`
	Regs    hypervisor.GeneralPurposeRegisters `yaml:"regs"`
	Rip     uint64                             `yaml:"rip"`
	Inject  uint64                             `yaml:"inject"`
	Pending uint64                             `yaml:"pending"`
	Poll    bool                               `yaml:"poll"`
}

// CoreReport is what one core did.
type CoreReport struct {
	ID     int                              `yaml:"id"`
	Steps  []StepResult                     `yaml:"steps"`
	Exits  map[hypervisor.ExitReason]uint64 `yaml:"-"`
	Halted bool                             `yaml:"halted"`
	Error  string                           `yaml:"error,omitempty"`
}

// Report is the outcome of a run.
type Report struct {
	Scenario string       `yaml:"scenario"`
	Cores    []CoreReport `yaml:"cores"`
}

// Processors returns n software processors configured for s.
func (s *Scenario) Processors() []*softcpu.CPU {
	cpus := make([]*softcpu.CPU, s.Cores)
	for i := range cpus {
		c := softcpu.New(i)
		if !s.InterruptWindow {
			pb := c.ReadMSR(x86.MSRIA32VMXProcBasedControls)
			c.SetMSR(x86.MSRIA32VMXProcBasedControls, pb&^(uint64(hypervisor.CpuBasedControlsInterruptWindowExiting)<<32))
		}
		cpus[i] = c
	}
	return cpus
}

// Run loads the hypervisor with cfg, loads one core per scenario core,
// replays the steps on every core concurrently and unloads everything.
// A core halted by the hypervisor is reported, not returned as an error.
func Run(ctx context.Context, s *Scenario, cfg hypervisor.Config, opts loader.Options) (*Report, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	soft := s.Processors()
	cpus := make([]x86.Processor, len(soft))
	for i, c := range soft {
		cpus[i] = c
	}

	if err := hypervisor.Load(cpus[0], cfg); err != nil {
		return nil, err
	}
	defer hypervisor.Unload()

	targets, err := loader.AllocateAll(cpus, opts)
	if err != nil {
		return nil, err
	}
	defer loader.FreeAll(targets)

	cores, err := loader.LoadAll(ctx, targets, opts)
	if err != nil {
		loader.UnloadAll(ctx, cores)
		return nil, err
	}

	report := &Report{Scenario: s.Name, Cores: make([]CoreReport, len(cores))}
	g, ctx := errgroup.WithContext(ctx)
	for i, c := range cores {
		i, c := i, c
		g.Go(func() error {
			report.Cores[i] = replay(ctx, s, soft[i], c)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	var live []*hypervisor.Core
	for _, c := range cores {
		if c.State() != hypervisor.StateHalted {
			live = append(live, c)
		}
	}
	if err := loader.UnloadAll(context.Background(), live); err != nil {
		return report, err
	}
	return report, nil
}

func replay(ctx context.Context, s *Scenario, cpu *softcpu.CPU, c *hypervisor.Core) (r CoreReport) {
	r.ID = c.VCpu().ID
	defer func() { r.Exits = c.ExitCounts() }()

	for i, step := range s.Steps {
		if ctx.Err() != nil {
			r.Error = ctx.Err().Error()
			return r
		}
		res, err := runStep(cpu, c, step)
		if err != nil {
			r.Halted = errors.Is(err, ErrHalted)
			r.Error = fmt.Sprintf("step %d (%s): %v", i, step.Exit, err)
			return r
		}
		r.Steps = append(r.Steps, res)
	}
	return r
}

func runStep(cpu *softcpu.CPU, c *hypervisor.Core, step Step) (res StepResult, err error) {
	reason, err := step.Reason()
	if err != nil {
		return res, err
	}

	rflags := uint64(x86.RFlagsReserved | x86.RFlagsIF)
	if step.RFlags != nil {
		rflags = *step.RFlags
	}
	cpu.Poke(uint32(hypervisor.GuestRFlags), rflags)
	cpu.Poke(uint32(hypervisor.GuestInterruptibilityInfo), step.Interruptibility)
	cpu.Poke(uint32(hypervisor.VmEntryIntrInfoField), 0)
	cpu.SetExit(uint64(reason), step.Qualification, step.Length)
	if reason == hypervisor.ExitReasonExternalInterrupt {
		cpu.SetExitInterrupt(step.Vector)
	}

	regs := step.Regs.gprs()
	if err := handle(c, &regs); err != nil {
		return res, err
	}

	rip, _ := cpu.Field(uint32(hypervisor.GuestRip))
	inject, _ := cpu.Field(uint32(hypervisor.VmEntryIntrInfoField))
	ic := c.VCpu().InterruptController
	return StepResult{
		Exit:    step.Exit,
		Regs:    regs,
		Rip:     rip,
		Inject:  inject,
		Pending: ic.Pending(),
		Poll:    ic.PollRequested(),
	}, nil
}

// handle runs one exit, turning the halt of the software processor into
// an error.
func handle(c *hypervisor.Core, regs *hypervisor.GeneralPurposeRegisters) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if r == softcpu.Halted {
				err = ErrHalted
				return
			}
			panic(r)
		}
	}()
	c.HandleExit(regs)
	return nil
}
