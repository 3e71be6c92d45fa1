package hypervisor

import "github.com/hankjacobs/hypervisor/x86"

// InterruptGuard disables interrupts on one core for the length of a
// critical section. Acquisitions nest; interrupts come back on only when
// the outermost release runs, and only if they were on before it was
// acquired. A guard is per core and not safe for concurrent use.
type InterruptGuard struct {
	cpu     x86.Processor
	depth   int
	restore bool
}

// NewInterruptGuard returns a guard for cpu.
func NewInterruptGuard(cpu x86.Processor) *InterruptGuard {
	return &InterruptGuard{cpu: cpu}
}

// Disable clears the interrupt flag and returns the func that undoes it.
// Calling the release func more than once has no further effect.
//
//	release := g.Disable()
//	defer release()
func (g *InterruptGuard) Disable() (release func()) {
	if g.depth == 0 {
		g.restore = g.cpu.ReadFlags()&x86.RFlagsIF != 0
		g.cpu.DisableInterrupts()
	}
	g.depth++

	released := false
	return func() {
		if released {
			return
		}
		released = true
		g.depth--
		if g.depth == 0 && g.restore {
			g.cpu.EnableInterrupts()
		}
	}
}

// Depth returns the number of unreleased acquisitions.
func (g *InterruptGuard) Depth() int { return g.depth }
