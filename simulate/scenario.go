// Package simulate replays a trace of VM exits against hypervisor cores
// running on software processors.
package simulate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hankjacobs/hypervisor"
)

// Scenario is a YAML exit trace. Every core replays the same steps.
type Scenario struct {
	Name  string `yaml:"name"`
	Cores int    `yaml:"cores"`
	// InterruptWindow controls whether the software processors allow
	// interrupt-window exiting. Without it the preemption timer is used.
	InterruptWindow bool   `yaml:"interruptWindow"`
	Steps           []Step `yaml:"steps"`
}

// Step is one VM exit and the guest state it is taken from.
type Step struct {
	Exit          string `yaml:"exit"`
	Qualification uint64 `yaml:"qualification"`
	Length        uint64 `yaml:"length"`
	Vector        uint8  `yaml:"vector"`

	// Guest state at the exit. Nil RFlags means interrupts enabled.
	RFlags           *uint64   `yaml:"rflags"`
	Interruptibility uint64    `yaml:"interruptibility"`
	Regs             Registers `yaml:"regs"`
}

// Registers are the general-purpose registers a step starts with.
type Registers struct {
	Rax uint64 `yaml:"rax"`
	Rbx uint64 `yaml:"rbx"`
	Rcx uint64 `yaml:"rcx"`
	Rdx uint64 `yaml:"rdx"`
	Rsi uint64 `yaml:"rsi"`
	Rdi uint64 `yaml:"rdi"`
}

func (r Registers) gprs() hypervisor.GeneralPurposeRegisters {
	return hypervisor.GeneralPurposeRegisters{
		Rax: r.Rax, Rbx: r.Rbx, Rcx: r.Rcx, Rdx: r.Rdx, Rsi: r.Rsi, Rdi: r.Rdi,
	}
}

var exitNames = map[string]hypervisor.ExitReason{
	"cpuid":              hypervisor.ExitReasonCpuid,
	"cr-access":          hypervisor.ExitReasonControlRegisterAccess,
	"external-interrupt": hypervisor.ExitReasonExternalInterrupt,
	"preemption-timer":   hypervisor.ExitReasonPreemptionTimerExpired,
	"interrupt-window":   hypervisor.ExitReasonInterruptWindow,
	"hlt":                hypervisor.ExitReasonHlt,
	"rdmsr":              hypervisor.ExitReasonRdmsr,
	"wrmsr":              hypervisor.ExitReasonWrmsr,
}

// Reason returns the exit reason the step names.
func (s Step) Reason() (hypervisor.ExitReason, error) {
	r, ok := exitNames[s.Exit]
	if !ok {
		return 0, fmt.Errorf("unknown exit %q", s.Exit)
	}
	return r, nil
}

// Validate checks the scenario before it is run.
func (s *Scenario) Validate() error {
	if s.Cores <= 0 {
		return fmt.Errorf("scenario %q: cores must be positive", s.Name)
	}
	for i, step := range s.Steps {
		if _, err := step.Reason(); err != nil {
			return fmt.Errorf("scenario %q: step %d: %w", s.Name, i, err)
		}
	}
	return nil
}

// ParseScenario decodes a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	s := &Scenario{Cores: 1}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}
