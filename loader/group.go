package loader

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hankjacobs/hypervisor"
	"github.com/hankjacobs/hypervisor/x86"
)

// Target is one logical core to load: its processor and the memory
// allocated for it.
type Target struct {
	CPU        x86.Processor
	Allocation *Allocation
}

// AllocateAll allocates a VCpu for every processor, numbering them in
// order. On error everything allocated so far is freed.
func AllocateAll(cpus []x86.Processor, opts Options) ([]Target, error) {
	targets := make([]Target, 0, len(cpus))
	for i, cpu := range cpus {
		a, err := Allocate(i, cpu, opts)
		if err != nil {
			FreeAll(targets)
			return nil, fmt.Errorf("core %d: %w", i, err)
		}
		targets = append(targets, Target{CPU: cpu, Allocation: a})
	}
	return targets, nil
}

// FreeAll frees every allocation in targets.
func FreeAll(targets []Target) error {
	var first error
	for _, t := range targets {
		if err := t.Allocation.Free(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LoadAll loads every target concurrently, one goroutine per core. Cores
// that loaded are returned in target order even if another failed; the
// caller unloads them.
func LoadAll(ctx context.Context, targets []Target, opts Options) ([]*hypervisor.Core, error) {
	cores := make([]*hypervisor.Core, len(targets))
	g, ctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if opts.Pin {
				runtime.LockOSThread()
				defer runtime.UnlockOSThread()
				if err := pin(t.Allocation.VCpu.ID); err != nil {
					return fmt.Errorf("core %d: %w", t.Allocation.VCpu.ID, err)
				}
			}
			c, err := hypervisor.CoreLoad(t.CPU, t.Allocation.VCpu)
			if err != nil {
				return fmt.Errorf("core %d: %w", t.Allocation.VCpu.ID, err)
			}
			cores[i] = c
			return nil
		})
	}
	err := g.Wait()
	return cores, err
}

// UnloadAll unloads every non-nil core concurrently.
func UnloadAll(ctx context.Context, cores []*hypervisor.Core) error {
	g, _ := errgroup.WithContext(ctx)
	for _, c := range cores {
		if c == nil {
			continue
		}
		c := c
		g.Go(func() error {
			if err := c.Unload(); err != nil {
				return fmt.Errorf("core %d: %w", c.VCpu().ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}
