package hypervisor

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Controls are the VM-execution, VM-exit and VM-entry controls requested
// before adjustment against the capability MSRs.
type Controls struct {
	PinBased  uint32 `yaml:"pinBased"`
	Primary   uint32 `yaml:"primary"`
	Secondary uint32 `yaml:"secondary"`
	Exit      uint32 `yaml:"exit"`
	Entry     uint32 `yaml:"entry"`
}

// DefaultControls: external-interrupt exiting with a preemption timer,
// MSR bitmaps, RDTSCP/INVPCID/XSAVES passed through, and a 64-bit host
// and guest.
func DefaultControls() Controls {
	return Controls{
		PinBased:  PinBasedControlsExternalInterruptExiting | PinBasedControlsVmxPreemption,
		Primary:   CpuBasedControlsMsrBitmaps | CpuBasedControlsSecondaryEnable,
		Secondary: SecondaryCpuBasedControlsRdtscpEnable | SecondaryCpuBasedControlsInvpcidEnable | SecondaryCpuBasedControlsXSavesEnable,
		Exit:      VmExitIa32eMode | VmExitAcknowledgeInterruptOnExit | VmExitConcealVmxFromPt,
		Entry:     VmEntryIa32eMode,
	}
}

// Config is the global hypervisor configuration handed to Load.
type Config struct {
	LogLevel             string   `yaml:"logLevel"`
	PreemptionTimerValue uint32   `yaml:"preemptionTimerValue"`
	Controls             Controls `yaml:"controls"`
	DumpOnLaunch         bool     `yaml:"dumpOnLaunch"`

	// Output receives log text. Nil discards it.
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		LogLevel:             "trace",
		PreemptionTimerValue: 0xfffff,
		Controls:             DefaultControls(),
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the fields that can be wrong.
func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c Config) level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.TraceLevel
	}
	return level
}
