package hypervisor

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hankjacobs/hypervisor/x86"
)

// globalState is shared by every core. Load and Unload write it; cores
// only read it.
type globalState struct {
	mu     sync.Mutex
	loaded bool
	cfg    Config
	cpu    x86.Processor
}

var global globalState

func currentConfig() Config {
	global.mu.Lock()
	defer global.mu.Unlock()
	if !global.loaded {
		return DefaultConfig()
	}
	return global.cfg
}

// processor returns the processor given to Load. It does not wait for the
// lock: it runs from exception handlers.
func (g *globalState) processor() x86.Processor {
	if !g.mu.TryLock() {
		return nil
	}
	defer g.mu.Unlock()
	return g.cpu
}

// Load performs the one-time global initialization: it installs the logger
// and builds the host IDT. cpu is the processor Load runs on; its code
// selector is used for the IDT gates and it is halted if the host takes an
// exception. Cores are loaded afterwards with CoreLoad.
func Load(cpu x86.Processor, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	global.mu.Lock()
	defer global.mu.Unlock()
	if global.loaded {
		return ErrAlreadyLoaded
	}

	setLogger(newLogger(cfg.Output, cfg.level()))
	l := Logger()
	l.Infof("Hypervisor version %s loading", Version)

	l.Trace("Initializing interrupt handlers")
	initInterruptHandlers(cpu.Selectors().CS)

	global.cfg = cfg
	global.cpu = cpu
	global.loaded = true
	l.Info("Hypervisor loaded")
	return nil
}

// Loaded reports whether Load has run without a matching Unload.
func Loaded() bool {
	global.mu.Lock()
	defer global.mu.Unlock()
	return global.loaded
}

// CoreLoad enables VMX on the core cpu belongs to and launches it as a
// guest of itself. It must run on that core. v must be zeroed apart from
// the fields the loader fills in. On failure the core is left outside VMX
// operation.
func CoreLoad(cpu x86.Processor, v *VCpu) (*Core, error) {
	if !Loaded() {
		return nil, ErrNotLoaded
	}
	c, err := NewCore(cpu, v)
	if err != nil {
		return nil, err
	}

	release := c.guard.Disable()
	defer release()

	c.log.Infof("Loading core %d", v.ID)
	if err := c.Enable(v.VMXONRegion); err != nil {
		c.log.WithError(err).Error("Failed to enable vmx")
		return nil, err
	}
	if err := c.LoadVM(); err != nil {
		c.log.WithError(err).Error("Failed to load vm")
		c.abandon()
		return nil, err
	}
	c.log.Infof("Core %d loaded", v.ID)
	return c, nil
}

// abandon leaves VMX operation after a failed launch, ignoring errors.
func (c *Core) abandon() {
	if ptr, err := c.cpu.VMPTRST(); err == nil && ptr != invalidVMCSPointer {
		_ = c.cpu.VMCLEAR(ptr)
	}
	if err := c.cpu.VMXOFF(); err != nil {
		c.log.WithError(err).Error("vmxoff after failed launch")
	}
	c.state = StateUnloaded
}

// Unload tears the core down: it clears the current VMCS and leaves VMX
// operation. It runs in root operation.
func (c *Core) Unload() error {
	switch c.state {
	case StateRoot, StateRunning:
	case StateHalted:
		return ErrCoreHalted
	default:
		return ErrNotLoaded
	}
	release := c.guard.Disable()
	defer release()

	c.log.Infof("Unloading core %d", c.vcpu.ID)
	ptr, err := c.cpu.VMPTRST()
	if err != nil {
		return c.vmFailure("vmptrst", err)
	}
	if ptr != invalidVMCSPointer {
		c.log.Tracef("vmclear %#x", ptr)
		if err := c.cpu.VMCLEAR(ptr); err != nil {
			return c.vmFailure("vmclear", err)
		}
	}
	if err := c.Disable(); err != nil {
		return err
	}
	c.vcpu.LoadedSuccessfully = false
	c.log.Infof("Core %d unloaded", c.vcpu.ID)
	return nil
}

// Unload is the global teardown, after every core has been unloaded.
func Unload() error {
	global.mu.Lock()
	defer global.mu.Unlock()
	if !global.loaded {
		return ErrNotLoaded
	}
	Logger().Info("Hypervisor unloaded")
	global.loaded = false
	global.cpu = nil
	global.cfg = Config{}
	setLogger(newLogger(nil, logrus.InfoLevel))
	return nil
}
